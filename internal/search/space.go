package search

import (
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/multierr"

	"mnistflow/internal/models"
)

// Distribution draws one integer hyperparameter value.
type Distribution interface {
	Sample(rng *rand.Rand) int
}

// Choice samples uniformly from a discrete set.
type Choice []int

func (c Choice) Sample(rng *rand.Rand) int { return c[rng.Intn(len(c))] }

// IntRange samples uniformly from [Low, High].
type IntRange struct {
	Low, High int
}

func (r IntRange) Sample(rng *rand.Rand) int { return r.Low + rng.Intn(r.High-r.Low+1) }

// Space maps a models.Params name to the distribution it is drawn from.
type Space map[string]Distribution

// DefaultSpace is the forest search space used when the config names none.
func DefaultSpace() Space {
	return Space{
		models.ParamNEstimators:     Choice{20, 50, 100},
		models.ParamMaxDepth:        Choice{0, 10, 20},
		models.ParamMinSamplesSplit: IntRange{Low: 2, High: 10},
		models.ParamMinSamplesLeaf:  IntRange{Low: 1, High: 5},
		models.ParamMaxFeatures:     Choice{0, 10, 28, 56},
	}
}

// Names returns the parameter names in sorted order, which is also the
// order Sample draws them in.
func (s Space) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate reports every unknown name and empty distribution at once.
func (s Space) Validate() error {
	var errs error
	base := models.DefaultParams()
	for _, name := range s.Names() {
		if _, err := base.Get(name); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		switch d := s[name].(type) {
		case Choice:
			if len(d) == 0 {
				errs = multierr.Append(errs, fmt.Errorf("%s: conjunto de valores vazio", name))
			}
		case IntRange:
			if d.Low > d.High {
				errs = multierr.Append(errs, fmt.Errorf("%s: intervalo invertido [%d, %d]", name, d.Low, d.High))
			}
		case nil:
			errs = multierr.Append(errs, fmt.Errorf("%s: distribuição ausente", name))
		}
	}
	return errs
}

// Sample returns base with every parameter of s redrawn.
func (s Space) Sample(base models.Params, rng *rand.Rand) (models.Params, error) {
	p := base
	for _, name := range s.Names() {
		var err error
		if p, err = p.Set(name, s[name].Sample(rng)); err != nil {
			return base, err
		}
	}
	return p, nil
}

// Spec is the file form of a Distribution: Values for a Choice, otherwise
// the inclusive Low/High range.
type Spec struct {
	Values []int `yaml:"values,omitempty" toml:"values,omitempty" json:"values,omitempty"`
	Low    int   `yaml:"low,omitempty" toml:"low,omitempty" json:"low,omitempty"`
	High   int   `yaml:"high,omitempty" toml:"high,omitempty" json:"high,omitempty"`
}

func (s Spec) Distribution() Distribution {
	if len(s.Values) > 0 {
		return Choice(append([]int(nil), s.Values...))
	}
	return IntRange{Low: s.Low, High: s.High}
}

// FromSpecs builds and validates a Space.
func FromSpecs(specs map[string]Spec) (Space, error) {
	s := make(Space, len(specs))
	for name, spec := range specs {
		s[name] = spec.Distribution()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
