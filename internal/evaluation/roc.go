package evaluation

import (
	"fmt"
	"math"
	"sort"

	"mnistflow/internal/data"
	"mnistflow/internal/models"
)

// Curve is the one-vs-rest ROC of one class. Thresholds[i] is the score at
// or above which a row is predicted positive to reach (FPR[i], TPR[i]).
type Curve struct {
	Label      int
	FPR        []float64
	TPR        []float64
	Thresholds []float64
	AUC        float64
}

// ROCCurve sweeps the threshold over the distinct scores, highest first.
// It returns nil slices when positives or negatives are absent.
func ROCCurve(positive []bool, scores []float64) (fpr, tpr, thr []float64) {
	type pair struct {
		s float64
		y bool
	}
	pairs := make([]pair, len(scores))
	var pos, neg int
	for i := range scores {
		pairs[i] = pair{scores[i], positive[i]}
		if positive[i] {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return nil, nil, nil
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].s > pairs[j].s })

	fpr = append(fpr, 0)
	tpr = append(tpr, 0)
	thr = append(thr, math.Inf(1))
	tp, fp := 0, 0
	for i := 0; i < len(pairs); i++ {
		if pairs[i].y {
			tp++
		} else {
			fp++
		}
		if i+1 < len(pairs) && pairs[i+1].s == pairs[i].s {
			continue
		}
		fpr = append(fpr, float64(fp)/float64(neg))
		tpr = append(tpr, float64(tp)/float64(pos))
		thr = append(thr, pairs[i].s)
	}
	return fpr, tpr, thr
}

// AUC integrates tpr over fpr with the trapezoidal rule.
func AUC(fpr, tpr []float64) float64 {
	var a float64
	for i := 1; i < len(fpr); i++ {
		a += (fpr[i] - fpr[i-1]) * (tpr[i] + tpr[i-1]) / 2
	}
	return a
}

// ROC computes one curve per class of clf, in Classes() order. Classes with
// no positive or no negative row in y are skipped.
func ROC(clf models.Classifier, X [][]float64, y []int) ([]Curve, error) {
	if err := data.CheckXY("ROC", X, y); err != nil {
		return nil, err
	}
	proba := clf.PredictProba(X)
	classes := clf.Classes()
	if len(proba) != len(y) {
		return nil, &data.ShapeMismatchError{Op: "ROC", What: "linhas de probabilidade", Want: len(y), Got: len(proba)}
	}
	curves := make([]Curve, 0, len(classes))
	scores := make([]float64, len(y))
	positive := make([]bool, len(y))
	for c, label := range classes {
		for i := range y {
			if len(proba[i]) != len(classes) {
				return nil, &data.ShapeMismatchError{Op: "ROC", What: fmt.Sprintf("colunas de probabilidade da linha %d", i), Want: len(classes), Got: len(proba[i])}
			}
			scores[i] = proba[i][c]
			positive[i] = y[i] == label
		}
		fpr, tpr, thr := ROCCurve(positive, scores)
		if fpr == nil {
			continue
		}
		curves = append(curves, Curve{Label: label, FPR: fpr, TPR: tpr, Thresholds: thr, AUC: AUC(fpr, tpr)})
	}
	return curves, nil
}

// MacroAUC is the unweighted mean AUC over the curves.
func MacroAUC(curves []Curve) float64 {
	if len(curves) == 0 {
		return 0
	}
	var s float64
	for _, c := range curves {
		s += c.AUC
	}
	return s / float64(len(curves))
}
