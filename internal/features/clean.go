package features

import (
	"gonum.org/v1/gonum/stat"

	"mnistflow/internal/data"
)

// MissingColumns lists, in column order, the columns holding at least one
// missing cell.
func MissingColumns(ds *data.Dataset) []string {
	out := []string{}
	for _, c := range ds.Columns() {
		col, _ := ds.Column(c)
		for _, v := range col {
			if data.IsMissing(v) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// SimpleImputer holds one fill value per column: the mean of its present
// cells at fit time.
type SimpleImputer struct {
	Columns []string
	Means   []float64
}

// FitImputer computes column means over present cells. A column with no
// present cell fails with *data.ImputationError.
func FitImputer(ds *data.Dataset, cols []string) (*SimpleImputer, error) {
	if cols == nil {
		cols = ds.RawColumns()
	}
	imp := &SimpleImputer{Columns: cols, Means: make([]float64, len(cols))}
	buf := make([]float64, 0, ds.Len())
	for j, c := range cols {
		col, err := ds.Column(c)
		if err != nil {
			return nil, err
		}
		buf = buf[:0]
		for _, v := range col {
			if !data.IsMissing(v) {
				buf = append(buf, v)
			}
		}
		if len(buf) == 0 {
			return nil, &data.ImputationError{Column: c}
		}
		imp.Means[j] = stat.Mean(buf, nil)
	}
	return imp, nil
}

// Transform replaces every missing cell with its column mean and returns
// how many cells were filled per column.
func (imp *SimpleImputer) Transform(ds *data.Dataset) (map[string]int, error) {
	filled := map[string]int{}
	for j, c := range imp.Columns {
		col, err := ds.Column(c)
		if err != nil {
			return nil, err
		}
		for i, v := range col {
			if data.IsMissing(v) {
				col[i] = imp.Means[j]
				filled[c]++
			}
		}
	}
	return filled, nil
}

// Mean returns the fill value of a column.
func (imp *SimpleImputer) Mean(col string) (float64, bool) {
	for j, c := range imp.Columns {
		if c == col {
			return imp.Means[j], true
		}
	}
	return 0, false
}

// ImputeMean fills the missing cells of every column that has any, in place.
// Means are computed for all affected columns before anything is written,
// so a failing column leaves the dataset untouched.
func ImputeMean(ds *data.Dataset) (*SimpleImputer, map[string]int, error) {
	cols := MissingColumns(ds)
	imp, err := FitImputer(ds, cols)
	if err != nil {
		return nil, nil, err
	}
	filled, err := imp.Transform(ds)
	if err != nil {
		return nil, nil, err
	}
	return imp, filled, nil
}
