package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

var labelHeaders = []string{"class", "label"}

// DecodeCSV reads a header row followed by one sample per line. The label
// column is named "class" or "label" and holds the digit as a string; every
// other column is a feature. Empty, "?" and "NaN" cells become Missing.
func DecodeCSV(r io.Reader, name string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("cabeçalho CSV: %w", err)
	}
	labelIdx := -1
	features := make([]string, 0, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if labelIdx < 0 && isLabelHeader(h) {
			labelIdx = i
			continue
		}
		features = append(features, h)
	}
	if err := checkSchema(features, labelIdx); err != nil {
		return nil, err
	}

	var rows [][]float64
	var labels []int
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("linha %d: %w", line, err)
		}
		row := make([]float64, 0, len(features))
		label := -1
		for i, cell := range rec {
			if i == labelIdx {
				label, err = parseLabel(cell)
				if err != nil {
					return nil, fmt.Errorf("linha %d: %w", line, err)
				}
				continue
			}
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("linha %d coluna %s: %w", line, header[i], err)
			}
			row = append(row, v)
		}
		rows = append(rows, row)
		labels = append(labels, label)
	}
	return FromRows(name, features, rows, labels)
}

func isLabelHeader(h string) bool {
	for _, l := range labelHeaders {
		if strings.EqualFold(h, l) {
			return true
		}
	}
	return false
}

func checkSchema(features []string, labelIdx int) error {
	var errs error
	if labelIdx < 0 {
		errs = multierr.Append(errs, fmt.Errorf("coluna de rótulo ausente (%s)", strings.Join(labelHeaders, "|")))
	}
	if len(features) != NumFeatures {
		errs = multierr.Append(errs, fmt.Errorf("%d colunas de features, esperado %d", len(features), NumFeatures))
	}
	seen := make(map[string]bool, len(features))
	for _, f := range features {
		if seen[f] {
			errs = multierr.Append(errs, fmt.Errorf("coluna duplicada %q", f))
		}
		seen[f] = true
	}
	return errs
}

func parseLabel(s string) (int, error) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > 9 {
		return 0, fmt.Errorf("rótulo %q fora de 0-9", s)
	}
	return v, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "?", "NaN", "nan", "NA":
		return Missing, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) {
		return 0, fmt.Errorf("valor não finito %q", s)
	}
	return v, nil
}
