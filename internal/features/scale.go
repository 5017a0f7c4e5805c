package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"mnistflow/internal/data"
)

// ScalePolicy decides where min/max come from.
type ScalePolicy string

const (
	// FitOnce fits on the training split and reuses the parameters on test.
	FitOnce ScalePolicy = "fit_once"
	// FitPerCall refits on whatever dataset is being scaled; the whole
	// dataset is scaled before splitting.
	FitPerCall ScalePolicy = "fit_per_call"
)

func ParseScalePolicy(s string) (ScalePolicy, error) {
	switch ScalePolicy(s) {
	case FitOnce, FitPerCall:
		return ScalePolicy(s), nil
	case "":
		return FitOnce, nil
	}
	return "", fmt.Errorf("política de escala desconhecida: %q", s)
}

// ConstantValue is assigned to every cell of a constant column.
const ConstantValue = 0.0

// MinMaxScaler holds per-column min and max.
type MinMaxScaler struct {
	Columns []string
	Min     []float64
	Max     []float64
}

// FitMinMax estimates min and max of each column independently. cols == nil
// means every raw column. Missing cells must be imputed first.
func FitMinMax(ds *data.Dataset, cols []string) (*MinMaxScaler, error) {
	if cols == nil {
		cols = ds.RawColumns()
	}
	if ds.Len() == 0 {
		return nil, &data.ShapeError{Op: "FitMinMax", Msg: "dataset vazio"}
	}
	s := &MinMaxScaler{Columns: cols, Min: make([]float64, len(cols)), Max: make([]float64, len(cols))}
	for j, c := range cols {
		col, err := ds.Column(c)
		if err != nil {
			return nil, err
		}
		if floats.HasNaN(col) {
			return nil, fmt.Errorf("coluna %s contém valores ausentes; impute antes de escalar", c)
		}
		s.Min[j] = floats.Min(col)
		s.Max[j] = floats.Max(col)
		if math.IsInf(s.Min[j], 0) || math.IsInf(s.Max[j], 0) {
			return nil, fmt.Errorf("coluna %s contém valores não finitos", c)
		}
	}
	return s, nil
}

// Transform appends <col>_scaled for every fitted column. Values outside the
// fitted range are clipped to [0,1].
func (s *MinMaxScaler) Transform(ds *data.Dataset) error {
	for j, c := range s.Columns {
		col, err := ds.Column(c)
		if err != nil {
			return err
		}
		out := make([]float64, len(col))
		for i, v := range col {
			out[i] = s.scale(j, v)
		}
		if err := ds.AddColumn(data.ScaledName(c), out); err != nil {
			return err
		}
	}
	return nil
}

// ScaleRow maps one raw row, ordered as Columns, with the fitted min/max.
func (s *MinMaxScaler) ScaleRow(row []float64) ([]float64, error) {
	if len(row) != len(s.Columns) {
		return nil, &data.ShapeMismatchError{Op: "ScaleRow", What: "valores", Want: len(s.Columns), Got: len(row)}
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = s.scale(j, v)
	}
	return out, nil
}

func (s *MinMaxScaler) scale(j int, v float64) float64 {
	lo, hi := s.Min[j], s.Max[j]
	if hi == lo {
		return ConstantValue
	}
	x := (v - lo) / (hi - lo)
	if math.IsInf(hi-lo, 0) {
		// range wider than MaxFloat64
		x = (v/2 - lo/2) / (hi/2 - lo/2)
	}
	switch {
	case math.IsNaN(x):
		return ConstantValue
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

// ScaleColumns fits on ds and transforms ds in one call.
func ScaleColumns(ds *data.Dataset, cols []string) (*MinMaxScaler, error) {
	s, err := FitMinMax(ds, cols)
	if err != nil {
		return nil, err
	}
	return s, s.Transform(ds)
}
