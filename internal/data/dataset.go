package data

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	ImageSide    = 28
	NumFeatures  = ImageSide * ImageSide
	ScaledSuffix = "_scaled"
)

// Missing marks an absent cell. NaN never equals a valid reading.
var Missing = math.NaN()

func IsMissing(v float64) bool { return math.IsNaN(v) }

// Dataset is a column-major table of float64 features plus an integer label
// per row.
type Dataset struct {
	Name    string
	Labels  []int
	columns []string
	index   map[string]int
	cols    [][]float64
}

// New allocates a zero-filled dataset with the given columns and row count.
func New(name string, columns []string, rows int) *Dataset {
	d := &Dataset{
		Name:    name,
		Labels:  make([]int, rows),
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
		cols:    make([][]float64, 0, len(columns)),
	}
	for _, c := range columns {
		d.columns = append(d.columns, c)
		d.index[c] = len(d.cols)
		d.cols = append(d.cols, make([]float64, rows))
	}
	return d
}

// FromRows builds a dataset from row-major values.
func FromRows(name string, columns []string, rows [][]float64, labels []int) (*Dataset, error) {
	if len(rows) != len(labels) {
		return nil, &ShapeMismatchError{Op: "FromRows", What: "rótulos", Want: len(rows), Got: len(labels)}
	}
	d := New(name, columns, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, &ShapeMismatchError{Op: "FromRows", What: fmt.Sprintf("colunas da linha %d", i), Want: len(columns), Got: len(r)}
		}
		for j, v := range r {
			d.cols[j][i] = v
		}
	}
	copy(d.Labels, labels)
	return d, nil
}

// PixelColumns returns positional feature names pixel1..pixelN.
func PixelColumns(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "pixel" + strconv.Itoa(i+1)
	}
	return out
}

func ScaledName(col string) string { return col + ScaledSuffix }

func (d *Dataset) Len() int { return len(d.Labels) }

func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// RawColumns lists the columns that are not derived scaled columns.
func (d *Dataset) RawColumns() []string {
	out := make([]string, 0, len(d.columns))
	for _, c := range d.columns {
		if !strings.HasSuffix(c, ScaledSuffix) {
			out = append(out, c)
		}
	}
	return out
}

// ScaledColumns lists the derived scaled columns in column order.
func (d *Dataset) ScaledColumns() []string {
	out := make([]string, 0, len(d.columns))
	for _, c := range d.columns {
		if strings.HasSuffix(c, ScaledSuffix) {
			out = append(out, c)
		}
	}
	return out
}

func (d *Dataset) Has(col string) bool {
	_, ok := d.index[col]
	return ok
}

// Column returns the backing slice of a column; writes go to the dataset.
func (d *Dataset) Column(col string) ([]float64, error) {
	j, ok := d.index[col]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
	}
	return d.cols[j], nil
}

func (d *Dataset) At(row int, col string) (float64, error) {
	c, err := d.Column(col)
	if err != nil {
		return 0, err
	}
	return c[row], nil
}

func (d *Dataset) Set(row int, col string, v float64) error {
	c, err := d.Column(col)
	if err != nil {
		return err
	}
	c[row] = v
	return nil
}

// AddColumn appends a column, or replaces its values if it already exists.
func (d *Dataset) AddColumn(col string, values []float64) error {
	if len(values) != d.Len() {
		return &ShapeMismatchError{Op: "AddColumn", What: "linhas de " + col, Want: d.Len(), Got: len(values)}
	}
	if j, ok := d.index[col]; ok {
		d.cols[j] = values
		return nil
	}
	d.columns = append(d.columns, col)
	d.index[col] = len(d.cols)
	d.cols = append(d.cols, values)
	return nil
}

// Row returns the values of row i for the given columns, in that order.
func (d *Dataset) Row(i int, cols []string) ([]float64, error) {
	out := make([]float64, len(cols))
	for k, c := range cols {
		j, ok := d.index[c]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, c)
		}
		out[k] = d.cols[j][i]
	}
	return out, nil
}

// Subset copies the given rows, in order, into a new dataset with the same
// schema.
func (d *Dataset) Subset(rows []int) *Dataset {
	out := New(d.Name, d.columns, len(rows))
	for j, src := range d.cols {
		dst := out.cols[j]
		for k, i := range rows {
			dst[k] = src[i]
		}
	}
	for k, i := range rows {
		out.Labels[k] = d.Labels[i]
	}
	return out
}

// Head keeps the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n <= 0 || n >= d.Len() {
		return d
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return d.Subset(rows)
}

// Classes returns the sorted distinct labels.
func (d *Dataset) Classes() []int {
	return DistinctLabels(d.Labels)
}

// DistinctLabels returns the sorted distinct values of y.
func DistinctLabels(y []int) []int {
	seen := map[int]bool{}
	out := []int{}
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
