package evaluation

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotROC saves all curves on one chart with the chance diagonal.
func PlotROC(curves []Curve, path string) error {
	p := plot.New()
	p.Title.Text = "Curvas ROC (um contra o resto)"
	p.X.Label.Text = "Taxa de falsos positivos"
	p.Y.Label.Text = "Taxa de verdadeiros positivos"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	lines := make([]interface{}, 0, 2*len(curves))
	for _, c := range curves {
		pts := make(plotter.XYs, len(c.FPR))
		for i := range c.FPR {
			pts[i].X = c.FPR[i]
			pts[i].Y = c.TPR[i]
		}
		lines = append(lines, fmt.Sprintf("%d (AUC=%.3f)", c.Label, c.AUC), pts)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return err
	}
	chance, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return err
	}
	chance.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(chance)
	p.Legend.Top = false
	p.Legend.Left = false

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(7*vg.Inch, 6*vg.Inch, path)
}

// PlotScores draws the per-fold cross-validation accuracies.
func PlotScores(scores []float64, path string) error {
	p := plot.New()
	p.Title.Text = "Acurácia por fold"
	p.X.Label.Text = "Fold"
	p.Y.Label.Text = "Acurácia"
	p.Y.Min, p.Y.Max = 0, 1

	pts := make(plotter.XYs, len(scores))
	for i, s := range scores {
		pts[i].X = float64(i + 1)
		pts[i].Y = s
	}
	if err := plotutil.AddLinePoints(p, "Validação cruzada", pts); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
