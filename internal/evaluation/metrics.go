package evaluation

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"mnistflow/internal/data"
)

// ConfusionMatrix counts test rows by (true label, predicted label). Rows and
// columns follow Labels, the sorted union of both label sets.
type ConfusionMatrix struct {
	Labels []int   `json:"labels"`
	Counts [][]int `json:"counts"`
}

func Confusion(yTrue, yPred []int) (ConfusionMatrix, error) {
	if len(yTrue) != len(yPred) {
		return ConfusionMatrix{}, &data.ShapeMismatchError{Op: "Confusion", What: "predições", Want: len(yTrue), Got: len(yPred)}
	}
	labels := data.DistinctLabels(append(append([]int(nil), yTrue...), yPred...))
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	counts := make([][]int, len(labels))
	for i := range counts {
		counts[i] = make([]int, len(labels))
	}
	for i := range yTrue {
		counts[pos[yTrue[i]]][pos[yPred[i]]]++
	}
	return ConfusionMatrix{Labels: labels, Counts: counts}, nil
}

func (cm ConfusionMatrix) Total() int {
	t := 0
	for _, r := range cm.Counts {
		for _, v := range r {
			t += v
		}
	}
	return t
}

func (cm ConfusionMatrix) Trace() int {
	t := 0
	for i := range cm.Counts {
		t += cm.Counts[i][i]
	}
	return t
}

func (cm ConfusionMatrix) Accuracy() float64 {
	n := cm.Total()
	if n == 0 {
		return 0
	}
	return float64(cm.Trace()) / float64(n)
}

// Print writes the matrix as a table, the diagonal in green and non-zero
// off-diagonal cells in red.
func (cm ConfusionMatrix) Print(w io.Writer) {
	hit := color.New(color.FgGreen, color.Bold)
	miss := color.New(color.FgRed)
	width := len(fmt.Sprint(cm.Total()))
	if width < 3 {
		width = 3
	}
	fmt.Fprintf(w, "%*s", width+2, "")
	for _, l := range cm.Labels {
		fmt.Fprintf(w, " %*d", width, l)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", (width+1)*(len(cm.Labels)+1)+1))
	for i, row := range cm.Counts {
		fmt.Fprintf(w, "%*d |", width, cm.Labels[i])
		for j, v := range row {
			cell := fmt.Sprintf(" %*d", width, v)
			switch {
			case i == j:
				hit.Fprint(w, cell)
			case v > 0:
				miss.Fprint(w, cell)
			default:
				fmt.Fprint(w, cell)
			}
		}
		fmt.Fprintln(w)
	}
}

func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

// ClassReport holds one-vs-rest precision, recall and F1 for a label.
type ClassReport struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

func (cm ConfusionMatrix) Report() []ClassReport {
	out := make([]ClassReport, len(cm.Labels))
	for i, l := range cm.Labels {
		var tp, fp, fn int
		tp = cm.Counts[i][i]
		for j := range cm.Labels {
			if j == i {
				continue
			}
			fn += cm.Counts[i][j]
			fp += cm.Counts[j][i]
		}
		r := ClassReport{Label: l, Support: tp + fn}
		if tp+fp > 0 {
			r.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			r.Recall = float64(tp) / float64(tp+fn)
		}
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		out[i] = r
	}
	return out
}

func PrintReport(w io.Writer, rs []ClassReport) {
	fmt.Fprintf(w, "%6s %10s %10s %10s %8s\n", "classe", "precisão", "recall", "f1", "suporte")
	for _, r := range rs {
		fmt.Fprintf(w, "%6d %10.4f %10.4f %10.4f %8d\n", r.Label, r.Precision, r.Recall, r.F1, r.Support)
	}
}
