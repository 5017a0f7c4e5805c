package features

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"mnistflow/internal/data"
)

func smallDataset(t *testing.T) *data.Dataset {
	t.Helper()
	ds, err := data.FromRows("t", []string{"a", "b", "c"}, [][]float64{
		{1, 10, 5},
		{2, 20, 5},
		{3, 30, 5},
		{6, 40, 5},
	}, []int{0, 1, 0, 1})
	if err != nil {
		t.Fatalf("from rows: %v", err)
	}
	return ds
}

func TestImputeMean_SingleNulledCell(t *testing.T) {
	ds := smallDataset(t)
	if err := ds.Set(1, "b", data.Missing); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := MissingColumns(ds); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("missing before: got %v want [b]", got)
	}

	imp, filled, err := ImputeMean(ds)
	if err != nil {
		t.Fatalf("impute: %v", err)
	}
	want := (10.0 + 30 + 40) / 3
	got, _ := ds.At(1, "b")
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("filled cell: got %v want %v", got, want)
	}
	if m, ok := imp.Mean("b"); !ok || m != got {
		t.Fatalf("imputer mean: %v %v", m, ok)
	}
	if filled["b"] != 1 {
		t.Fatalf("filled count: %v", filled)
	}
	if got := MissingColumns(ds); len(got) != 0 {
		t.Fatalf("missing after: %v", got)
	}
}

func TestImputeMean_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ds := data.Synthetic(40, 0.05, rng)
	if _, _, err := ImputeMean(ds); err != nil {
		t.Fatalf("first: %v", err)
	}
	snapshot := ds.Subset(allRows(ds.Len()))
	_, filled, err := ImputeMean(ds)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(filled) != 0 {
		t.Fatalf("second pass should fill nothing, filled %v", filled)
	}
	for _, c := range ds.Columns() {
		a, _ := ds.Column(c)
		b, _ := snapshot.Column(c)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("column %s changed on second pass", c)
		}
	}
}

func TestImputeMean_AllMissingColumn(t *testing.T) {
	ds := smallDataset(t)
	for i := 0; i < ds.Len(); i++ {
		_ = ds.Set(i, "c", data.Missing)
	}
	_ = ds.Set(0, "a", data.Missing)

	_, _, err := ImputeMean(ds)
	var ie *data.ImputationError
	if !errors.As(err, &ie) {
		t.Fatalf("expected ImputationError, got %v", err)
	}
	if ie.Column != "c" {
		t.Fatalf("column: %q", ie.Column)
	}
	if v, _ := ds.At(0, "a"); !data.IsMissing(v) {
		t.Fatalf("dataset must be untouched on failure, a[0] = %v", v)
	}
}

func TestSimpleImputer_ReusesFittedMeans(t *testing.T) {
	train := smallDataset(t)
	imp, err := FitImputer(train, nil)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	test := smallDataset(t)
	_ = test.Set(0, "a", data.Missing)
	if _, err := imp.Transform(test); err != nil {
		t.Fatalf("transform: %v", err)
	}
	if v, _ := test.At(0, "a"); v != 3 {
		t.Fatalf("got %v want train mean 3", v)
	}
}

func allRows(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
