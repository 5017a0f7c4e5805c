package models

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"mnistflow/internal/data"
)

type DTNode struct {
	Feature   int
	Threshold float64
	Left      *DTNode
	Right     *DTNode
	IsLeaf    bool
	Proba     []float64
	Samples   int
	Impurity  float64
}

// DecisionTree is a multi-class CART tree on Gini impurity.
type DecisionTree struct {
	MaxDepth           int
	MinSamplesSplit    int
	MinSamplesLeaf     int
	MaxThresholdsPerFe int
	MaxFeatures        int
	Seed               *int64
	ClassLabels        []int
	NFeatures          int
	Importances        []float64
	Root               *DTNode
}

func NewDecisionTree() *DecisionTree {
	return &DecisionTree{MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxThresholdsPerFe: 32}
}

func treeFromParams(p Params) *DecisionTree {
	return &DecisionTree{
		MaxDepth:           p.MaxDepth,
		MinSamplesSplit:    p.MinSamplesSplit,
		MinSamplesLeaf:     p.MinSamplesLeaf,
		MaxThresholdsPerFe: p.MaxThresholdsPerFe,
		MaxFeatures:        p.MaxFeatures,
		Seed:               p.Seed,
	}
}

func (dt *DecisionTree) Name() string { return "DecisionTree" }

func (dt *DecisionTree) Classes() []int { return dt.ClassLabels }

func (dt *DecisionTree) Fit(X [][]float64, y []int) error {
	if err := data.CheckXY("DecisionTree.Fit", X, y); err != nil {
		return err
	}
	classes, yi := encodeLabels(y)
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	dt.fit(X, yi, idx, classes, newRand(dt.Seed))
	return nil
}

// fit grows the tree on the rows listed in idx, which may repeat.
func (dt *DecisionTree) fit(X [][]float64, yi []int, idx []int, classes []int, rng *rand.Rand) {
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	if dt.MinSamplesLeaf < 1 {
		dt.MinSamplesLeaf = 1
	}
	dt.ClassLabels = classes
	dt.NFeatures = len(X[0])
	dt.Importances = make([]float64, dt.NFeatures)
	b := builder{dt: dt, X: X, y: yi, k: len(classes), rng: rng}
	dt.Root = b.build(idx, 0)
}

func (dt *DecisionTree) Predict(X [][]float64) []int {
	out := make([]int, len(X))
	for i := range X {
		out[i] = dt.ClassLabels[Argmax(dt.leaf(X[i]).Proba)]
	}
	return out
}

func (dt *DecisionTree) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range X {
		out[i] = append([]float64(nil), dt.leaf(X[i]).Proba...)
	}
	return out
}

func (dt *DecisionTree) leaf(x []float64) *DTNode {
	n := dt.Root
	for !n.IsLeaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n
}

// Depth returns the number of split levels.
func (dt *DecisionTree) Depth() int { return depth(dt.Root) }

func depth(n *DTNode) int {
	if n == nil || n.IsLeaf {
		return 0
	}
	return 1 + max(depth(n.Left), depth(n.Right))
}

type builder struct {
	dt  *DecisionTree
	X   [][]float64
	y   []int
	k   int
	rng *rand.Rand
}

type valueClass struct {
	v float64
	c int
}

func (b *builder) build(idx []int, depth int) *DTNode {
	counts := make([]float64, b.k)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	n := float64(len(idx))
	node := &DTNode{Samples: len(idx), Impurity: gini(counts, n), Proba: make([]float64, b.k)}
	for c := range counts {
		node.Proba[c] = counts[c] / n
	}
	dt := b.dt
	if len(idx) < dt.MinSamplesSplit || len(idx) < 2*dt.MinSamplesLeaf ||
		(dt.MaxDepth > 0 && depth >= dt.MaxDepth) || node.Impurity == 0 {
		node.IsLeaf = true
		return node
	}

	bestFeature := -1
	bestThr := 0.0
	bestImp := math.MaxFloat64
	pairs := make([]valueClass, len(idx))
	left := make([]float64, b.k)
	for _, f := range pickFeatures(dt.NFeatures, dt.MaxFeatures, b.rng) {
		for j, i := range idx {
			pairs[j] = valueClass{b.X[i][f], b.y[i]}
		}
		sort.Slice(pairs, func(a, c int) bool { return pairs[a].v < pairs[c].v })
		if pairs[0].v == pairs[len(pairs)-1].v {
			continue
		}
		for c := range left {
			left[c] = 0
		}
		p := 0
		for _, thr := range candidateThresholds(pairs, dt.MaxThresholdsPerFe, b.rng) {
			for p < len(pairs) && pairs[p].v <= thr {
				left[pairs[p].c]++
				p++
			}
			nl, nr := p, len(pairs)-p
			if nl < dt.MinSamplesLeaf || nr < dt.MinSamplesLeaf {
				continue
			}
			imp := splitImpurity(left, counts, float64(nl), float64(nr))
			if imp < bestImp {
				bestImp = imp
				bestFeature = f
				bestThr = thr
			}
		}
	}
	if bestFeature == -1 {
		node.IsLeaf = true
		return node
	}

	lIdx := make([]int, 0, len(idx))
	rIdx := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][bestFeature] <= bestThr {
			lIdx = append(lIdx, i)
		} else {
			rIdx = append(rIdx, i)
		}
	}
	dt.Importances[bestFeature] += n*node.Impurity - n*bestImp
	node.Feature = bestFeature
	node.Threshold = bestThr
	node.Left = b.build(lIdx, depth+1)
	node.Right = b.build(rIdx, depth+1)
	return node
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	s := 1.0
	for _, c := range counts {
		p := c / n
		s -= p * p
	}
	return s
}

// splitImpurity is the size-weighted Gini of the two children.
func splitImpurity(left, total []float64, nl, nr float64) float64 {
	var gl, gr float64 = 1, 1
	for c := range total {
		pl := left[c] / nl
		pr := (total[c] - left[c]) / nr
		gl -= pl * pl
		gr -= pr * pr
	}
	n := nl + nr
	return (nl/n)*gl + (nr/n)*gr
}

// candidateThresholds returns ascending thresholds over sorted pairs. With
// maxC <= 0 every midpoint between distinct values is a candidate, otherwise
// up to maxC observed values are drawn at random.
func candidateThresholds(pairs []valueClass, maxC int, rng *rand.Rand) []float64 {
	last := pairs[len(pairs)-1].v
	if maxC <= 0 {
		out := make([]float64, 0, len(pairs))
		for i := 0; i+1 < len(pairs); i++ {
			if pairs[i].v < pairs[i+1].v {
				out = append(out, (pairs[i].v+pairs[i+1].v)/2)
			}
		}
		return out
	}
	m := min(maxC, len(pairs))
	out := make([]float64, 0, m)
	for i := 0; i < m; i++ {
		v := pairs[rng.Intn(len(pairs))].v
		if v < last {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	uniq := out[:0]
	for i, v := range out {
		if i == 0 || v != out[i-1] {
			uniq = append(uniq, v)
		}
	}
	return uniq
}

func pickFeatures(nFeats int, maxFeats int, rng *rand.Rand) []int {
	if maxFeats <= 0 || maxFeats >= nFeats {
		out := make([]int, nFeats)
		for i := 0; i < nFeats; i++ {
			out[i] = i
		}
		return out
	}
	return rng.Perm(nFeats)[:maxFeats]
}

// encodeLabels maps labels to 0..k-1 in sorted label order.
func encodeLabels(y []int) ([]int, []int) {
	classes := data.DistinctLabels(y)
	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	yi := make([]int, len(y))
	for i, v := range y {
		yi[i] = pos[v]
	}
	return classes, yi
}

func newRand(seed *int64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(*seed))
}
