package models

import (
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"mnistflow/internal/data"
)

// RandomForest averages bootstrap-trained trees that each look at a random
// feature subset per split.
type RandomForest struct {
	Params      Params
	Label       string
	ClassLabels []int
	NFeatures   int
	Trees       []*DecisionTree
}

func NewRandomForest(p Params) *RandomForest {
	return &RandomForest{Params: p, Label: "RandomForest", Trees: []*DecisionTree{}}
}

func (rf *RandomForest) Name() string { return rf.Label }

func (rf *RandomForest) Classes() []int { return rf.ClassLabels }

// Fit draws one seed per tree from the forest seed before any worker starts,
// so the fitted forest does not depend on which tree finishes first.
func (rf *RandomForest) Fit(X [][]float64, y []int) error {
	if err := data.CheckXY("RandomForest.Fit", X, y); err != nil {
		return err
	}
	if rf.Params.NEstimators <= 0 {
		rf.Params.NEstimators = DefaultParams().NEstimators
	}
	n := len(X)
	rf.NFeatures = len(X[0])
	maxFeatures := rf.Params.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Sqrt(float64(rf.NFeatures))))
	}
	classes, yi := encodeLabels(y)
	rf.ClassLabels = classes

	rng := newRand(rf.Params.Seed)
	seeds := make([]int64, rf.Params.NEstimators)
	for k := range seeds {
		seeds[k] = rng.Int63()
	}

	trees := make([]*DecisionTree, rf.Params.NEstimators)
	var g errgroup.Group
	g.SetLimit(Workers(rf.Params.Jobs))
	for k := range trees {
		k := k
		g.Go(func() error {
			r := rand.New(rand.NewSource(seeds[k]))
			idx := make([]int, n)
			for i := range idx {
				idx[i] = r.Intn(n)
			}
			dt := treeFromParams(rf.Params)
			dt.MaxFeatures = maxFeatures
			dt.Seed = &seeds[k]
			dt.fit(X, yi, idx, classes, r)
			trees[k] = dt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	rf.Trees = trees
	return nil
}

// Predict takes the majority vote of the trees; ties go to the smaller label.
func (rf *RandomForest) Predict(X [][]float64) []int {
	out := make([]int, len(X))
	votes := make([]float64, len(rf.ClassLabels))
	for i := range X {
		for c := range votes {
			votes[c] = 0
		}
		for _, dt := range rf.Trees {
			votes[Argmax(dt.leaf(X[i]).Proba)]++
		}
		out[i] = rf.ClassLabels[Argmax(votes)]
	}
	return out
}

// PredictProba averages the leaf class distributions of the trees.
func (rf *RandomForest) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	m := float64(len(rf.Trees))
	for i := range X {
		p := make([]float64, len(rf.ClassLabels))
		for _, dt := range rf.Trees {
			for c, v := range dt.leaf(X[i]).Proba {
				p[c] += v
			}
		}
		for c := range p {
			p[c] /= m
		}
		out[i] = p
	}
	return out
}

// FeatureImportances is the mean impurity decrease per feature, normalised
// to sum to one.
func (rf *RandomForest) FeatureImportances() []float64 {
	out := make([]float64, rf.NFeatures)
	var total float64
	for _, dt := range rf.Trees {
		for f, v := range dt.Importances {
			out[f] += v
			total += v
		}
	}
	if total == 0 {
		return out
	}
	for f := range out {
		out[f] /= total
	}
	return out
}
