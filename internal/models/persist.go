package models

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mnistflow/internal/features"
)

// Bundle is what Save writes: the fitted model and the scaler that produced
// its training features. Scaler is nil for bundles saved without one.
type Bundle struct {
	Model  Classifier
	Scaler *features.MinMaxScaler
}

// Save writes a forest, a booster or a single tree with encoding/gob,
// followed by the scaler.
func Save(path string, b Bundle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeBundle(gob.NewEncoder(f), b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeBundle(enc *gob.Encoder, b Bundle) error {
	var err error
	switch v := b.Model.(type) {
	case *RandomForest:
		err = encodeKind(enc, AlgoRandomForest, v)
	case *DecisionTree:
		err = encodeKind(enc, AlgoDecisionTree, v)
	case *GradientBoosting:
		err = encodeKind(enc, AlgoGradientBoosting, v)
	default:
		return fmt.Errorf("modelo %T não serializável", b.Model)
	}
	if err != nil {
		return err
	}
	var sc features.MinMaxScaler
	if b.Scaler != nil {
		sc = *b.Scaler
	}
	return enc.Encode(sc)
}

func encodeKind(enc *gob.Encoder, kind string, v any) error {
	if err := enc.Encode(kind); err != nil {
		return err
	}
	return enc.Encode(v)
}

// Load reads a bundle written by Save. Files that end after the model load
// with a nil Scaler.
func Load(path string) (Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return Bundle{}, err
	}
	defer f.Close()
	dec := gob.NewDecoder(f)
	m, err := decodeModel(dec, path)
	if err != nil {
		return Bundle{}, err
	}
	b := Bundle{Model: m}
	var sc features.MinMaxScaler
	if err := dec.Decode(&sc); errors.Is(err, io.EOF) {
		return b, nil
	} else if err != nil {
		return Bundle{}, fmt.Errorf("ler escala: %w", err)
	}
	if len(sc.Columns) == 0 {
		return b, nil
	}
	if len(sc.Min) != len(sc.Columns) || len(sc.Max) != len(sc.Columns) {
		return Bundle{}, fmt.Errorf("escala inconsistente em %s: %d colunas, %d mínimos, %d máximos", path, len(sc.Columns), len(sc.Min), len(sc.Max))
	}
	b.Scaler = &sc
	return b, nil
}

func decodeModel(dec *gob.Decoder, path string) (Classifier, error) {
	var kind string
	if err := dec.Decode(&kind); err != nil {
		return nil, fmt.Errorf("ler modelo: %w", err)
	}
	switch kind {
	case AlgoRandomForest:
		var rf RandomForest
		if err := dec.Decode(&rf); err != nil {
			return nil, fmt.Errorf("ler floresta: %w", err)
		}
		if len(rf.Trees) == 0 {
			return nil, fmt.Errorf("floresta sem árvores em %s", path)
		}
		return &rf, nil
	case AlgoDecisionTree:
		var dt DecisionTree
		if err := dec.Decode(&dt); err != nil {
			return nil, fmt.Errorf("ler árvore: %w", err)
		}
		if dt.Root == nil {
			return nil, fmt.Errorf("árvore vazia em %s", path)
		}
		return &dt, nil
	case AlgoGradientBoosting:
		var gb GradientBoosting
		if err := dec.Decode(&gb); err != nil {
			return nil, fmt.Errorf("ler boosting: %w", err)
		}
		if len(gb.Init) == 0 {
			return nil, fmt.Errorf("boosting sem classes em %s", path)
		}
		return &gb, nil
	}
	return nil, fmt.Errorf("tipo de modelo desconhecido %q", kind)
}
