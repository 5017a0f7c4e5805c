package models

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	AlgoRandomForest     = "rf"
	AlgoBagging          = "bagging"
	AlgoDecisionTree     = "dt"
	AlgoGradientBoosting = "gb"
)

// ForestTrainer is the default Trainer.
type ForestTrainer struct {
	Algorithm string
	Logger    *zap.Logger
}

func NewTrainer(algo string, logger *zap.Logger) (*ForestTrainer, error) {
	switch algo {
	case "":
		algo = AlgoRandomForest
	case AlgoRandomForest, AlgoBagging, AlgoDecisionTree, AlgoGradientBoosting:
	default:
		return nil, fmt.Errorf("algoritmo desconhecido: %q (rf|bagging|dt|gb)", algo)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ForestTrainer{Algorithm: algo, Logger: logger}, nil
}

// New returns the unfit model for p.
func (t *ForestTrainer) New(p Params) Estimator {
	switch t.Algorithm {
	case AlgoDecisionTree:
		return treeFromParams(p)
	case AlgoBagging:
		return NewBagging(p)
	case AlgoGradientBoosting:
		return NewGradientBoosting(p)
	default:
		return NewRandomForest(p)
	}
}

func (t *ForestTrainer) Fit(X [][]float64, y []int, p Params) (Classifier, error) {
	m := t.New(p)
	start := time.Now()
	if err := m.Fit(X, y); err != nil {
		return nil, fmt.Errorf("treinar %s: %w", m.Name(), err)
	}
	t.logger().Debug("Modelo treinado",
		zap.String("model", m.Name()),
		zap.Int("linhas", len(X)),
		zap.Stringer("params", p),
		zap.Duration("duracao", time.Since(start)),
	)
	return m, nil
}

func (t *ForestTrainer) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}
