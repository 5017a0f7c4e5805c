package explore

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mnistflow/internal/data"
)

func TestDescribe(t *testing.T) {
	ds, err := data.FromRows("t", []string{"a", "b"}, [][]float64{
		{1, 5},
		{2, 5},
		{3, data.Missing},
		{4, 5},
		{data.Missing, 5},
	}, []int{0, 1, 0, 1, 0})
	if err != nil {
		t.Fatalf("from rows: %v", err)
	}
	sums, err := Describe(ds, nil)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d summaries", len(sums))
	}
	a := sums[0]
	if a.Count != 4 || a.Missing != 1 || a.Mean != 2.5 || a.Min != 1 || a.Max != 4 {
		t.Fatalf("a = %+v", a)
	}
	if math.Abs(a.Std-math.Sqrt(5.0/3.0)) > 1e-12 {
		t.Fatalf("std %v", a.Std)
	}
	if a.Q25 > a.Q50 || a.Q50 > a.Q75 || a.Q25 < a.Min || a.Q75 > a.Max {
		t.Fatalf("quartiles out of order: %+v", a)
	}
	if b := sums[1]; b.Std != 0 || b.Q50 != 5 {
		t.Fatalf("constant column b = %+v", b)
	}

	var buf bytes.Buffer
	if err := PrintSummaries(&buf, sums); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(buf.String(), "ausentes") {
		t.Fatalf("table: %s", buf.String())
	}

	if _, err := Describe(ds, []string{"zz"}); !errors.Is(err, data.ErrUnknownColumn) {
		t.Fatalf("expected unknown column, got %v", err)
	}
}

func TestReshape(t *testing.T) {
	for _, tc := range []struct {
		n    int
		side int
		ok   bool
	}{
		{784, 28, true},
		{9, 3, true},
		{1, 1, true},
		{0, 0, false},
		{783, 0, false},
		{10, 0, false},
	} {
		m, err := Reshape(make([]float64, tc.n))
		if !tc.ok {
			var se *data.ShapeError
			if !errors.As(err, &se) {
				t.Fatalf("n=%d: expected ShapeError, got %v", tc.n, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("n=%d: %v", tc.n, err)
		}
		if r, c := m.Dims(); r != tc.side || c != tc.side {
			t.Fatalf("n=%d: dims %dx%d", tc.n, r, c)
		}
	}

	m, _ := Reshape([]float64{1, 2, 3, 4})
	if m.At(0, 1) != 2 || m.At(1, 0) != 3 {
		t.Fatalf("reshape is not row-major")
	}
}

func TestASCII(t *testing.T) {
	s, err := ASCII([]float64{0, 255, 0, 255})
	if err != nil {
		t.Fatalf("ascii: %v", err)
	}
	if s != " @\n @\n" {
		t.Fatalf("got %q", s)
	}
	if _, err := ASCII(make([]float64, 5)); err == nil {
		t.Fatalf("expected shape error")
	}
}

func TestRenderDigitAndHistogram(t *testing.T) {
	ds := data.Synthetic(40, 0.05, rand.New(rand.NewSource(1)))
	row, err := ds.Row(0, ds.RawColumns())
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	dir := t.TempDir()
	for _, tc := range []struct {
		name string
		vals []float64
	}{
		{"digit.png", row},
		{"blank.png", make([]float64, data.NumFeatures)},
	} {
		path := filepath.Join(dir, tc.name)
		if err := RenderDigit(tc.vals, "amostra", path); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		assertPNG(t, path)
	}

	path := filepath.Join(dir, "hist", "h.png")
	cols := []string{"pixel1", "pixel100", "pixel300", "pixel400"}
	if err := Histogram(ds, cols, 10, path); err != nil {
		t.Fatalf("histogram: %v", err)
	}
	assertPNG(t, path)
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Fatalf("%s is not a PNG", path)
	}
}
