package explore

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"mnistflow/internal/data"
)

// Summary mirrors a describe() row: missing cells are left out of every
// statistic, Std is the sample standard deviation (0 below two values).
type Summary struct {
	Column  string  `json:"column"`
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Min     float64 `json:"min"`
	Q25     float64 `json:"q25"`
	Q50     float64 `json:"q50"`
	Q75     float64 `json:"q75"`
	Max     float64 `json:"max"`
}

// Describe summarises cols, or every raw column when cols is empty.
func Describe(ds *data.Dataset, cols []string) ([]Summary, error) {
	if len(cols) == 0 {
		cols = ds.RawColumns()
	}
	out := make([]Summary, 0, len(cols))
	for _, col := range cols {
		v, err := ds.Column(col)
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(col, v))
	}
	return out, nil
}

func summarize(col string, v []float64) Summary {
	vals := present(v)
	s := Summary{Column: col, Count: len(vals), Missing: len(v) - len(vals)}
	if len(vals) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Q25, s.Q50, s.Q75, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s
	}
	sort.Float64s(vals)
	s.Mean, s.Std = stat.MeanStdDev(vals, nil)
	if len(vals) < 2 {
		s.Std = 0
	}
	s.Min, s.Max = vals[0], vals[len(vals)-1]
	s.Q25 = stat.Quantile(0.25, stat.LinInterp, vals, nil)
	s.Q50 = stat.Quantile(0.50, stat.LinInterp, vals, nil)
	s.Q75 = stat.Quantile(0.75, stat.LinInterp, vals, nil)
	return s
}

func present(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !data.IsMissing(x) {
			out = append(out, x)
		}
	}
	return out
}

func PrintSummaries(w io.Writer, sums []Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "coluna\tcount\tausentes\tmean\tstd\tmin\t25%\t50%\t75%\tmax\t")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n",
			s.Column, s.Count, s.Missing, s.Mean, s.Std, s.Min, s.Q25, s.Q50, s.Q75, s.Max)
	}
	return tw.Flush()
}

const histPerRow = 3

// Histogram writes one histogram panel per column into a single PNG.
func Histogram(ds *data.Dataset, cols []string, bins int, path string) error {
	if len(cols) == 0 {
		return fmt.Errorf("nenhuma coluna para o histograma")
	}
	nRows := (len(cols) + histPerRow - 1) / histPerRow
	nCols := min(len(cols), histPerRow)
	plots := make([][]*plot.Plot, nRows)
	for i := range plots {
		plots[i] = make([]*plot.Plot, nCols)
	}
	for k, col := range cols {
		v, err := ds.Column(col)
		if err != nil {
			return err
		}
		p := plot.New()
		p.Title.Text = col
		if vals := present(v); len(vals) > 0 {
			h, err := plotter.NewHist(plotter.Values(vals), bins)
			if err != nil {
				return fmt.Errorf("histograma de %s: %w", col, err)
			}
			p.Add(h)
		}
		plots[k/histPerRow][k%histPerRow] = p
	}
	for k := len(cols); k < nRows*nCols; k++ {
		blank := plot.New()
		blank.HideAxes()
		plots[k/histPerRow][k%histPerRow] = blank
	}

	img := vgimg.New(vg.Length(nCols)*3*vg.Inch, vg.Length(nRows)*2.5*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      nRows,
		Cols:      nCols,
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		for j, p := range plots[i] {
			p.Draw(canvases[i][j])
		}
	}
	return savePNG(img, path)
}

func savePNG(img *vgimg.Canvas, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
