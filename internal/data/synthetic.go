package data

import (
	"encoding/csv"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
)

// Synthetic builds an MNIST-shaped dataset of n rows: each class lights a
// distinct 6x6 patch of the 28x28 grid over background noise. missingRate
// of the cells are set to Missing.
func Synthetic(n int, missingRate float64, rng *rand.Rand) *Dataset {
	ds := New("synthetic", PixelColumns(NumFeatures), n)
	for i := 0; i < n; i++ {
		label := rng.Intn(10)
		ds.Labels[i] = label
		r0 := 2 + (label/5)*12
		c0 := 1 + (label%5)*5
		for j := 0; j < NumFeatures; j++ {
			v := float64(rng.Intn(40))
			r, c := j/ImageSide, j%ImageSide
			if r >= r0 && r < r0+6 && c >= c0 && c < c0+6 {
				v = float64(180 + rng.Intn(76))
			}
			if missingRate > 0 && rng.Float64() < missingRate {
				v = Missing
			}
			ds.cols[j][i] = v
		}
	}
	return ds
}

// WriteCSV writes ds in the format read by DecodeCSV.
func WriteCSV(ds *Dataset, outPath string) error {
	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := encodeCSV(f, ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeCSV(out io.Writer, ds *Dataset) error {
	w := csv.NewWriter(out)
	header := append(ds.Columns(), "class")
	if err := w.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for i := 0; i < ds.Len(); i++ {
		for j, col := range ds.cols {
			v := col[i]
			if IsMissing(v) {
				rec[j] = "?"
			} else {
				rec[j] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		rec[len(rec)-1] = strconv.Itoa(ds.Labels[i])
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
