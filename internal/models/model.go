package models

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

//go:generate mockgen -destination=mocks/mock_model.go -package=mocks mnistflow/internal/models Classifier,Trainer

// Classifier is a fitted model. PredictProba columns follow Classes().
type Classifier interface {
	Predict(X [][]float64) []int
	PredictProba(X [][]float64) [][]float64
	Classes() []int
	Name() string
}

// Estimator is an unfit model that trains itself in place.
type Estimator interface {
	Classifier
	Fit(X [][]float64, y []int) error
}

// Trainer fits a fresh Classifier for a hyperparameter configuration.
type Trainer interface {
	Fit(X [][]float64, y []int, p Params) (Classifier, error)
}

// Params are the recognised hyperparameters. Zero MaxDepth means unlimited,
// zero MaxFeatures means sqrt(p), zero MaxThresholdsPerFe means every split
// point, zero Jobs means one worker per logical core. A nil Seed draws one
// from the clock. LearningRate is only read by gradient boosting.
type Params struct {
	NEstimators        int     `yaml:"n_estimators" toml:"n_estimators" json:"n_estimators" validate:"gte=1"`
	MaxDepth           int     `yaml:"max_depth" toml:"max_depth" json:"max_depth" validate:"gte=0"`
	MinSamplesSplit    int     `yaml:"min_samples_split" toml:"min_samples_split" json:"min_samples_split" validate:"gte=2"`
	MinSamplesLeaf     int     `yaml:"min_samples_leaf" toml:"min_samples_leaf" json:"min_samples_leaf" validate:"gte=1"`
	MaxFeatures        int     `yaml:"max_features" toml:"max_features" json:"max_features" validate:"gte=0"`
	MaxThresholdsPerFe int     `yaml:"max_thresholds" toml:"max_thresholds" json:"max_thresholds" validate:"gte=0"`
	LearningRate       float64 `yaml:"learning_rate" toml:"learning_rate" json:"learning_rate" validate:"gte=0,lte=1"`
	Jobs               int     `yaml:"jobs" toml:"jobs" json:"jobs" validate:"gte=0"`
	Seed               *int64  `yaml:"seed" toml:"seed" json:"seed,omitempty"`
}

func DefaultParams() Params {
	return Params{
		NEstimators:        100,
		MinSamplesSplit:    2,
		MinSamplesLeaf:     1,
		MaxThresholdsPerFe: 32,
		LearningRate:       0.1,
	}
}

// Parameter names accepted by Set and Get.
const (
	ParamNEstimators     = "n_estimators"
	ParamMaxDepth        = "max_depth"
	ParamMinSamplesSplit = "min_samples_split"
	ParamMinSamplesLeaf  = "min_samples_leaf"
	ParamMaxFeatures     = "max_features"
	ParamMaxThresholds   = "max_thresholds"
)

func (p *Params) field(name string) (*int, error) {
	switch name {
	case ParamNEstimators:
		return &p.NEstimators, nil
	case ParamMaxDepth:
		return &p.MaxDepth, nil
	case ParamMinSamplesSplit:
		return &p.MinSamplesSplit, nil
	case ParamMinSamplesLeaf:
		return &p.MinSamplesLeaf, nil
	case ParamMaxFeatures:
		return &p.MaxFeatures, nil
	case ParamMaxThresholds:
		return &p.MaxThresholdsPerFe, nil
	}
	return nil, fmt.Errorf("hiperparâmetro desconhecido: %q", name)
}

// Set returns a copy of p with one named parameter changed.
func (p Params) Set(name string, v int) (Params, error) {
	f, err := p.field(name)
	if err != nil {
		return p, err
	}
	*f = v
	return p, nil
}

func (p Params) Get(name string) (int, error) {
	f, err := p.field(name)
	if err != nil {
		return 0, err
	}
	return *f, nil
}

func (p Params) WithSeed(seed int64) Params {
	p.Seed = &seed
	return p
}

func (p Params) String() string {
	seed := "nil"
	if p.Seed != nil {
		seed = fmt.Sprint(*p.Seed)
	}
	return fmt.Sprintf("n_estimators=%d max_depth=%d min_samples_split=%d min_samples_leaf=%d max_features=%d max_thresholds=%d learning_rate=%g jobs=%d seed=%s",
		p.NEstimators, p.MaxDepth, p.MinSamplesSplit, p.MinSamplesLeaf, p.MaxFeatures, p.MaxThresholdsPerFe, p.LearningRate, p.Jobs, seed)
}

// Workers resolves a configured worker count.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	if c := cpuid.CPU.LogicalCores; c > 0 {
		return c
	}
	return runtime.NumCPU()
}

// Argmax returns the index of the largest value, the first one on ties.
func Argmax(p []float64) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}
