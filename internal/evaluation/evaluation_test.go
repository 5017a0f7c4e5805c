package evaluation

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"mnistflow/internal/models"
	"mnistflow/internal/models/mocks"
)

func TestConfusion_SumAndTraceMatchAccuracy(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	yTrue := make([]int, 500)
	yPred := make([]int, 500)
	for i := range yTrue {
		yTrue[i] = rng.Intn(10)
		yPred[i] = yTrue[i]
		if rng.Float64() < 0.3 {
			yPred[i] = rng.Intn(10)
		}
	}
	cm, err := Confusion(yTrue, yPred)
	if err != nil {
		t.Fatalf("confusion: %v", err)
	}
	if cm.Total() != len(yTrue) {
		t.Fatalf("total %d want %d", cm.Total(), len(yTrue))
	}
	if got, want := cm.Accuracy(), Accuracy(yTrue, yPred); math.Abs(got-want) > 1e-12 {
		t.Fatalf("trace/total %v, accuracy %v", got, want)
	}
	if !reflect.DeepEqual(cm.Labels, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Fatalf("labels %v", cm.Labels)
	}
}

func TestConfusion_CellLayout(t *testing.T) {
	cm, err := Confusion([]int{1, 1, 2, 3}, []int{1, 2, 2, 1})
	if err != nil {
		t.Fatalf("confusion: %v", err)
	}
	want := [][]int{
		{1, 1, 0},
		{0, 1, 0},
		{1, 0, 0},
	}
	if !reflect.DeepEqual(cm.Counts, want) {
		t.Fatalf("counts %v want %v", cm.Counts, want)
	}
	rep := cm.Report()
	if rep[0].Label != 1 || rep[0].Precision != 0.5 || rep[0].Recall != 0.5 || rep[0].Support != 2 {
		t.Fatalf("report[0] = %+v", rep[0])
	}
	var buf bytes.Buffer
	cm.Print(&buf)
	PrintReport(&buf, rep)
	if !strings.Contains(buf.String(), "suporte") {
		t.Fatalf("printed output: %s", buf.String())
	}
	if _, err := Confusion([]int{1}, nil); err == nil {
		t.Fatalf("expected shape mismatch")
	}
}

func TestKFold_Folds(t *testing.T) {
	y := make([]int, 31)
	for i := range y {
		y[i] = i % 3
	}
	for _, kf := range []KFold{{K: 3}, {K: 4, Shuffle: true}, {K: 3, Stratified: true, Shuffle: true}} {
		folds, err := kf.Folds(y, rand.New(rand.NewSource(1)))
		if err != nil {
			t.Fatalf("%+v: %v", kf, err)
		}
		if len(folds) != kf.K {
			t.Fatalf("%+v: %d folds", kf, len(folds))
		}
		seen := make([]int, len(y))
		for _, f := range folds {
			if len(f) < len(y)/kf.K || len(f) > len(y)/kf.K+1 {
				t.Fatalf("%+v: unbalanced fold size %d", kf, len(f))
			}
			for _, i := range f {
				seen[i]++
			}
		}
		for i, c := range seen {
			if c != 1 {
				t.Fatalf("%+v: row %d in %d folds", kf, i, c)
			}
		}
	}
	if _, err := (KFold{K: 1}).Folds(y, nil); err == nil {
		t.Fatalf("expected error for K=1")
	}
}

func TestCrossValScore_ThreeFoldsInRange(t *testing.T) {
	X, y := separable(90, 5)
	tr, err := models.NewTrainer(models.AlgoRandomForest, nil)
	if err != nil {
		t.Fatalf("trainer: %v", err)
	}
	p := models.DefaultParams().WithSeed(1)
	p.NEstimators = 10
	scores, err := CrossValScore(tr, p, X, y, KFold{K: 3, Stratified: true, Shuffle: true}, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("cv: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("got %d scores", len(scores))
	}
	for _, s := range scores {
		if s < 0 || s > 1 {
			t.Fatalf("score %v outside [0,1]", s)
		}
	}
}

func TestCrossValScore_TrainsOncePerFold(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTrainer(ctrl)
	clf := mocks.NewMockClassifier(ctrl)

	X, y := separable(12, 2)
	p := models.DefaultParams()
	tr.EXPECT().Fit(gomock.Len(8), gomock.Len(8), p).Return(clf, nil).Times(3)
	clf.EXPECT().Predict(gomock.Any()).DoAndReturn(func(X [][]float64) []int {
		return make([]int, len(X))
	}).Times(3)

	scores, err := CrossValScore(tr, p, X, y, KFold{K: 3}, nil)
	if err != nil {
		t.Fatalf("cv: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("scores %v", scores)
	}
}

func TestROC_PerfectAndChance(t *testing.T) {
	ctrl := gomock.NewController(t)
	clf := mocks.NewMockClassifier(ctrl)
	X := [][]float64{{0}, {0}, {0}, {0}}
	y := []int{0, 0, 1, 1}
	clf.EXPECT().Classes().Return([]int{0, 1}).AnyTimes()
	// class 0 ranked perfectly, class 1 scores are all tied
	clf.EXPECT().PredictProba(X).Return([][]float64{
		{0.9, 0.5},
		{0.8, 0.5},
		{0.2, 0.5},
		{0.1, 0.5},
	})

	curves, err := ROC(clf, X, y)
	if err != nil {
		t.Fatalf("roc: %v", err)
	}
	if len(curves) != 2 {
		t.Fatalf("curves %d", len(curves))
	}
	if curves[0].AUC != 1 {
		t.Fatalf("class 0 AUC %v want 1", curves[0].AUC)
	}
	if curves[1].AUC != 0.5 {
		t.Fatalf("class 1 AUC %v want 0.5", curves[1].AUC)
	}
	for _, c := range curves {
		n := len(c.FPR)
		if c.FPR[0] != 0 || c.TPR[0] != 0 || c.FPR[n-1] != 1 || c.TPR[n-1] != 1 {
			t.Fatalf("curve %d does not span (0,0)-(1,1): %v %v", c.Label, c.FPR, c.TPR)
		}
	}
	if got := MacroAUC(curves); got != 0.75 {
		t.Fatalf("macro AUC %v", got)
	}
}

func TestROC_TrainedForestAndPlot(t *testing.T) {
	X, y := separable(120, 3)
	p := models.DefaultParams().WithSeed(9)
	p.NEstimators = 8
	rf := models.NewRandomForest(p)
	if err := rf.Fit(X, y); err != nil {
		t.Fatalf("fit: %v", err)
	}
	curves, err := ROC(rf, X, y)
	if err != nil {
		t.Fatalf("roc: %v", err)
	}
	for _, c := range curves {
		if c.AUC < 0 || c.AUC > 1 {
			t.Fatalf("AUC %v out of range", c.AUC)
		}
	}
	path := filepath.Join(t.TempDir(), "roc.png")
	if err := PlotROC(curves, path); err != nil {
		t.Fatalf("plot: %v", err)
	}
	if st, err := os.Stat(path); err != nil || st.Size() == 0 {
		t.Fatalf("png not written: %v", err)
	}
}

func separable(n, k int) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(int64(n)))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		c := i % k
		X[i] = []float64{float64(c) + rng.Float64()*0.4, rng.Float64()}
		y[i] = c
	}
	return X, y
}
