package models

import (
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"mnistflow/internal/data"
)

const gbMaxBins = 255

// Stump is a depth-one regression tree on the softmax residual of one class.
// Feature -1 marks a round in which no split was admissible.
type Stump struct {
	Feature   int
	Threshold float64
	LeftVal   float64
	RightVal  float64
}

func (s Stump) value(x []float64) float64 {
	switch {
	case s.Feature < 0:
		return 0
	case x[s.Feature] <= s.Threshold:
		return s.LeftVal
	default:
		return s.RightVal
	}
}

// GradientBoosting adds one stump per class and round to the class scores,
// each fitted to y_k - softmax_k on quantile-binned features.
type GradientBoosting struct {
	Params      Params
	ClassLabels []int
	NFeatures   int
	Init        []float64
	Stages      [][]Stump
}

func NewGradientBoosting(p Params) *GradientBoosting {
	return &GradientBoosting{Params: p}
}

func (gb *GradientBoosting) Name() string { return "GradientBoosting" }

func (gb *GradientBoosting) Classes() []int { return gb.ClassLabels }

func (gb *GradientBoosting) learningRate() float64 {
	if gb.Params.LearningRate <= 0 {
		return DefaultParams().LearningRate
	}
	return gb.Params.LearningRate
}

func (gb *GradientBoosting) Fit(X [][]float64, y []int) error {
	if err := data.CheckXY("GradientBoosting.Fit", X, y); err != nil {
		return err
	}
	classes, yi := encodeLabels(y)
	gb.ClassLabels = classes
	n, k := len(X), len(classes)
	gb.NFeatures = len(X[0])

	nCand := gb.Params.MaxThresholdsPerFe
	if nCand <= 0 || nCand > gbMaxBins {
		nCand = gbMaxBins
	}
	thr := make([][]float64, gb.NFeatures)
	for j := range thr {
		thr[j] = gbCandidateThresholds(X, j, nCand)
	}
	// bins[i][j] is the first threshold index with X[i][j] <= thr[j][b]
	bins := make([][]uint8, n)
	for i := range bins {
		bins[i] = make([]uint8, gb.NFeatures)
		for j, v := range X[i] {
			bins[i][j] = uint8(sort.SearchFloat64s(thr[j], v))
		}
	}

	prior := make([]float64, k)
	for _, c := range yi {
		prior[c]++
	}
	gb.Init = make([]float64, k)
	for c := range prior {
		gb.Init[c] = math.Log(math.Max(prior[c]/float64(n), 1e-3))
	}
	F := make([][]float64, n)
	for i := range F {
		F[i] = append([]float64(nil), gb.Init...)
	}

	minLeaf := max(gb.Params.MinSamplesLeaf, 1)
	lr := gb.learningRate()
	rounds := gb.Params.NEstimators
	if rounds <= 0 {
		rounds = DefaultParams().NEstimators
	}
	gb.Stages = gb.Stages[:0]
	P := make([][]float64, n)
	for m := 0; m < rounds; m++ {
		for i := range F {
			P[i] = softmax(F[i])
		}
		stage := make([]Stump, k)
		var g errgroup.Group
		g.SetLimit(Workers(gb.Params.Jobs))
		for c := 0; c < k; c++ {
			c := c
			g.Go(func() error {
				r := make([]float64, n)
				for i := range r {
					r[i] = -P[i][c]
					if yi[i] == c {
						r[i]++
					}
				}
				stage[c] = bestStump(bins, thr, r, minLeaf)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		split := false
		for _, s := range stage {
			split = split || s.Feature >= 0
		}
		if !split {
			break
		}
		gb.Stages = append(gb.Stages, stage)
		for i := range F {
			for c, s := range stage {
				F[i][c] += lr * s.value(X[i])
			}
		}
	}
	return nil
}

// bestStump maximises the between-leaf sum of squares of r over every
// feature and bin boundary; ties keep the lowest feature and threshold.
func bestStump(bins [][]uint8, thr [][]float64, r []float64, minLeaf int) Stump {
	best := Stump{Feature: -1}
	bestGain := math.Inf(-1)
	var total float64
	for _, v := range r {
		total += v
	}
	n := len(r)
	for j := range thr {
		nb := len(thr[j]) + 1
		sum := make([]float64, nb)
		cnt := make([]int, nb)
		for i, row := range bins {
			sum[row[j]] += r[i]
			cnt[row[j]]++
		}
		var ls float64
		var lc int
		for b := 0; b < nb-1; b++ {
			ls += sum[b]
			lc += cnt[b]
			rc := n - lc
			if lc < minLeaf || rc < minLeaf {
				continue
			}
			rs := total - ls
			gain := ls*ls/float64(lc) + rs*rs/float64(rc)
			if gain > bestGain {
				bestGain = gain
				best = Stump{Feature: j, Threshold: thr[j][b], LeftVal: ls / float64(lc), RightVal: rs / float64(rc)}
			}
		}
	}
	return best
}

func (gb *GradientBoosting) scores(x []float64) []float64 {
	f := append([]float64(nil), gb.Init...)
	lr := gb.learningRate()
	for _, stage := range gb.Stages {
		for c, s := range stage {
			f[c] += lr * s.value(x)
		}
	}
	return f
}

func (gb *GradientBoosting) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range X {
		out[i] = softmax(gb.scores(X[i]))
	}
	return out
}

func (gb *GradientBoosting) Predict(X [][]float64) []int {
	out := make([]int, len(X))
	for i := range X {
		out[i] = gb.ClassLabels[Argmax(gb.scores(X[i]))]
	}
	return out
}

func softmax(f []float64) []float64 {
	m := f[0]
	for _, v := range f[1:] {
		m = math.Max(m, v)
	}
	out := make([]float64, len(f))
	var s float64
	for c, v := range f {
		out[c] = math.Exp(v - m)
		s += out[c]
	}
	for c := range out {
		out[c] /= s
	}
	return out
}

// gbCandidateThresholds returns up to nCand-1 distinct quantiles of column j.
func gbCandidateThresholds(X [][]float64, j int, nCand int) []float64 {
	n := len(X)
	vals := make([]float64, n)
	for i := range X {
		vals[i] = X[i][j]
	}
	sort.Float64s(vals)
	out := make([]float64, 0, nCand)
	for k := 1; k < nCand; k++ {
		idx := int(math.Round(float64(k) / float64(nCand) * float64(n-1)))
		if idx <= 0 || idx >= n-1 {
			continue
		}
		thr := vals[idx]
		if len(out) == 0 || thr != out[len(out)-1] {
			out = append(out, thr)
		}
	}
	return out
}
