package explore

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"mnistflow/internal/data"
)

// Reshape lays a row out as a square image, row-major.
func Reshape(values []float64) (*mat.Dense, error) {
	n := len(values)
	side := int(math.Sqrt(float64(n)))
	if n == 0 || side*side != n {
		return nil, &data.ShapeError{Op: "Reshape", Msg: fmt.Sprintf("%d valores não formam uma grade quadrada", n)}
	}
	return mat.NewDense(side, side, append([]float64(nil), values...)), nil
}

// digitGrid exposes an image matrix as a heat-map grid with row 0 on top.
type digitGrid struct{ m mat.Matrix }

func (g digitGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g digitGrid) Z(c, r int) float64 {
	rows, _ := g.m.Dims()
	return g.m.At(rows-1-r, c)
}

func (g digitGrid) X(c int) float64 { return float64(c) }
func (g digitGrid) Y(r int) float64 { return float64(r) }

// Min and Max skip missing pixels so the palette range stays finite.
func (g digitGrid) Min() float64 { lo, _ := g.bounds(); return lo }
func (g digitGrid) Max() float64 { _, hi := g.bounds(); return hi }

func (g digitGrid) bounds() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	r, c := g.m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := g.m.At(i, j); !data.IsMissing(v) {
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
		}
	}
	if lo > hi {
		return 0, 1
	}
	return lo, hi
}

// binary runs from white at the lowest intensity to black at the highest.
type binary int

func (n binary) Colors() []color.Color {
	out := make([]color.Color, n)
	for i := range out {
		out[i] = color.Gray{Y: uint8(255 - 255*i/(int(n)-1))}
	}
	return out
}

// RenderDigit writes values, reshaped to a square, as a grey-scale PNG.
func RenderDigit(values []float64, title, path string) error {
	m, err := Reshape(values)
	if err != nil {
		return err
	}
	hm := plotter.NewHeatMap(digitGrid{m}, binary(256))
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(hm)

	img := vgimg.New(4*vg.Inch, 4*vg.Inch)
	p.Draw(draw.New(img))
	return savePNG(img, path)
}

const asciiRamp = " .:-=+*#%@"

// ASCII renders values, reshaped to a square, with one character per pixel.
func ASCII(values []float64) (string, error) {
	m, err := Reshape(values)
	if err != nil {
		return "", err
	}
	hi := floats.Max(values)
	var b strings.Builder
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			k := 0
			if hi > 0 && !data.IsMissing(v) {
				k = int(math.Round(v / hi * float64(len(asciiRamp)-1)))
				k = min(max(k, 0), len(asciiRamp)-1)
			}
			b.WriteByte(asciiRamp[k])
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
