package data

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func idxBytes(t *testing.T, dims []int, payload []byte) []byte {
	t.Helper()
	var raw bytes.Buffer
	raw.Write([]byte{0, 0, idxUbyte, byte(len(dims))})
	for _, d := range dims {
		_ = binary.Write(&raw, binary.BigEndian, uint32(d))
	}
	raw.Write(payload)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return gz.Bytes()
}

func idxFiles(t *testing.T, nTrain, nTest int) map[string][]byte {
	t.Helper()
	img := func(n int, fill byte) []byte {
		b := make([]byte, n*NumFeatures)
		for i := range b {
			b[i] = fill
		}
		return b
	}
	lab := func(n int, base byte) []byte {
		b := make([]byte, n)
		for i := range b {
			b[i] = (base + byte(i)) % 10
		}
		return b
	}
	return map[string][]byte{
		trainSetImg: idxBytes(t, []int{nTrain, ImageSide, ImageSide}, img(nTrain, 7)),
		trainSetVal: idxBytes(t, []int{nTrain}, lab(nTrain, 0)),
		inferSetImg: idxBytes(t, []int{nTest, ImageSide, ImageSide}, img(nTest, 200)),
		inferSetVal: idxBytes(t, []int{nTest}, lab(nTest, 5)),
	}
}

func serve(t *testing.T, files map[string][]byte, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		b, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoader_IDX_ConcatenatesTrainAndTest(t *testing.T) {
	srv := serve(t, idxFiles(t, 3, 2), nil)
	l := NewLoader(srv.URL, "", FormatIDX)
	l.Digests = nil

	ds, err := l.Load(context.Background(), "mnist_784")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.Len() != 5 {
		t.Fatalf("rows: got %d want 5", ds.Len())
	}
	if got := len(ds.Columns()); got != NumFeatures {
		t.Fatalf("columns: got %d want %d", got, NumFeatures)
	}
	if ds.Columns()[0] != "pixel1" || ds.Columns()[NumFeatures-1] != "pixel784" {
		t.Fatalf("unexpected column names %q..%q", ds.Columns()[0], ds.Columns()[NumFeatures-1])
	}
	wantLabels := []int{0, 1, 2, 5, 6}
	for i, w := range wantLabels {
		if ds.Labels[i] != w {
			t.Fatalf("label %d: got %d want %d", i, ds.Labels[i], w)
		}
	}
	if v, _ := ds.At(4, "pixel10"); v != 200 {
		t.Fatalf("test part pixel: got %v want 200", v)
	}
}

func TestLoader_CachesDownloads(t *testing.T) {
	var hits int32
	srv := serve(t, idxFiles(t, 2, 1), &hits)
	dir := t.TempDir()
	l := NewLoader(srv.URL, dir, FormatIDX)
	l.Digests = nil

	if _, err := l.Load(context.Background(), "mnist_784"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	first := atomic.LoadInt32(&hits)
	if _, err := l.Load(context.Background(), "mnist_784"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if atomic.LoadInt32(&hits) != first {
		t.Fatalf("second load should read from cache")
	}
	if _, err := os.Stat(filepath.Join(dir, trainSetImg)); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}
}

func TestLoader_Failures(t *testing.T) {
	files := idxFiles(t, 2, 1)
	bad := map[string][]byte{}
	for k, v := range files {
		bad[k] = v
	}
	bad[trainSetImg] = idxBytes(t, []int{2, 27, 27}, make([]byte, 2*27*27))

	tests := []struct {
		name    string
		files   map[string][]byte
		digests map[string]string
		format  Format
	}{
		{name: "not found", files: map[string][]byte{}, format: FormatIDX},
		{name: "wrong image side", files: bad, format: FormatIDX},
		{name: "digest mismatch", files: files, digests: map[string]string{trainSetImg: "00"}, format: FormatIDX},
		{name: "csv missing", files: map[string][]byte{}, format: FormatCSV},
		{name: "unknown format", files: files, format: "parquet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.files, nil)
			l := NewLoader(srv.URL, "", tt.format)
			l.Digests = tt.digests
			_, err := l.Load(context.Background(), "mnist_784")
			var re *RetrievalError
			if !errors.As(err, &re) {
				t.Fatalf("expected RetrievalError, got %v", err)
			}
			if !errors.Is(err, ErrRetrieval) {
				t.Fatalf("expected ErrRetrieval in chain")
			}
		})
	}
}

func TestLoader_CSVRoundTripWithLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := Synthetic(12, 0.01, rng)
	dir := t.TempDir()
	if err := WriteCSV(src, filepath.Join(dir, "digits.csv")); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := NewLoader("http://127.0.0.1:1", dir, FormatCSV)
	l.Limit = 10
	ds, err := l.Load(context.Background(), "digits")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.Len() != 10 {
		t.Fatalf("limit: got %d rows", ds.Len())
	}
	for i := 0; i < ds.Len(); i++ {
		if ds.Labels[i] != src.Labels[i] {
			t.Fatalf("label %d differs", i)
		}
	}
	col := src.Columns()[0]
	a, _ := src.Column(col)
	b, _ := ds.Column(col)
	for i := range b {
		if IsMissing(a[i]) != IsMissing(b[i]) || (!IsMissing(a[i]) && a[i] != b[i]) {
			t.Fatalf("cell %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestDecodeCSV_SchemaErrorsAggregated(t *testing.T) {
	_, err := DecodeCSV(strings.NewReader("a,a,b\n1,2,3\n"), "x")
	if err == nil {
		t.Fatalf("expected schema error")
	}
	msg := err.Error()
	for _, want := range []string{"rótulo ausente", "3 colunas", "duplicada"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
}

func TestDecodeCSV_LabelOutOfRange(t *testing.T) {
	cols := PixelColumns(NumFeatures)
	var b strings.Builder
	b.WriteString(strings.Join(cols, ",") + ",class\n")
	b.WriteString(strings.Repeat("0,", NumFeatures) + "12\n")
	if _, err := DecodeCSV(strings.NewReader(b.String()), "x"); err == nil {
		t.Fatalf("expected label error")
	}
}

func TestDecodeCSV_RejectsInfiniteCell(t *testing.T) {
	cols := PixelColumns(NumFeatures)
	for _, cell := range []string{"inf", "-Inf", "+infinity"} {
		var b strings.Builder
		b.WriteString(strings.Join(cols, ",") + ",class\n")
		b.WriteString(cell + "," + strings.Repeat("0,", NumFeatures-1) + "3\n")
		_, err := DecodeCSV(strings.NewReader(b.String()), "x")
		if err == nil || !strings.Contains(err.Error(), "não finito") {
			t.Fatalf("%s: expected non-finite error, got %v", cell, err)
		}
	}
}

func TestReadIDX_HeaderChecksBeforeAllocating(t *testing.T) {
	header := func(dims ...uint32) []byte {
		var b bytes.Buffer
		b.Write([]byte{0, 0, idxUbyte, byte(len(dims))})
		for _, d := range dims {
			_ = binary.Write(&b, binary.BigEndian, d)
		}
		return b.Bytes()
	}
	tests := []struct {
		name string
		raw  []byte
		tail []int
	}{
		{name: "huge count", raw: header(0xFFFFFFFF, ImageSide, ImageSide), tail: []int{ImageSide, ImageSide}},
		{name: "huge side", raw: header(1, 0xFFFFFFFF, 0xFFFFFFFF), tail: []int{ImageSide, ImageSide}},
		{name: "huge labels", raw: header(0xFFFFFFFF)},
		{name: "wrong rank", raw: header(2, ImageSide), tail: []int{ImageSide, ImageSide}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := readIDX(bytes.NewReader(tt.raw), tt.tail...); err == nil {
				t.Fatalf("expected header error")
			}
		})
	}

	dims, payload, err := readIDX(bytes.NewReader(append(header(2), 4, 7)))
	if err != nil || len(dims) != 1 || dims[0] != 2 || len(payload) != 2 {
		t.Fatalf("labels: dims=%v payload=%v err=%v", dims, payload, err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disco cheio") }

func TestWriteCSV_ReportsWriteErrors(t *testing.T) {
	ds := Synthetic(3, 0, rand.New(rand.NewSource(1)))
	if err := encodeCSV(failingWriter{}, ds); err == nil {
		t.Fatalf("expected write error")
	}
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteCSV(ds, filepath.Join(file, "digits.csv")); err == nil {
		t.Fatalf("expected error writing below a regular file")
	}
}
