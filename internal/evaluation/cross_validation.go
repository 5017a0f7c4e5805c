package evaluation

import (
	"fmt"
	"math/rand"

	"mnistflow/internal/data"
	"mnistflow/internal/models"
)

// KFold assigns every row to exactly one of K held-out folds.
type KFold struct {
	K          int
	Stratified bool
	Shuffle    bool
}

// Folds returns the held-out row indices of each fold.
func (kf KFold) Folds(y []int, rng *rand.Rand) ([][]int, error) {
	n := len(y)
	if kf.K < 2 || kf.K > n {
		return nil, fmt.Errorf("número de folds deve estar entre 2 e %d: %d", n, kf.K)
	}
	if kf.Shuffle && rng == nil {
		return nil, fmt.Errorf("shuffle exige uma fonte aleatória")
	}
	folds := make([][]int, kf.K)
	if !kf.Stratified {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		if kf.Shuffle {
			rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
		// the first n%K folds get one extra row
		start := 0
		for f := 0; f < kf.K; f++ {
			size := n / kf.K
			if f < n%kf.K {
				size++
			}
			folds[f] = append([]int(nil), idx[start:start+size]...)
			start += size
		}
		return folds, nil
	}

	byClass := map[int][]int{}
	for i, l := range y {
		byClass[l] = append(byClass[l], i)
	}
	next := 0
	for _, c := range data.DistinctLabels(y) {
		rows := byClass[c]
		if kf.Shuffle {
			rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		}
		for _, r := range rows {
			folds[next] = append(folds[next], r)
			next = (next + 1) % kf.K
		}
	}
	return folds, nil
}

// CrossValScore trains on K-1 folds and scores accuracy on the held-out one,
// K times.
func CrossValScore(tr models.Trainer, p models.Params, X [][]float64, y []int, kf KFold, rng *rand.Rand) ([]float64, error) {
	if err := data.CheckXY("CrossValScore", X, y); err != nil {
		return nil, err
	}
	folds, err := kf.Folds(y, rng)
	if err != nil {
		return nil, err
	}
	inFold := make([]int, len(y))
	for f, rows := range folds {
		for _, r := range rows {
			inFold[r] = f
		}
	}
	scores := make([]float64, 0, kf.K)
	for f, test := range folds {
		trainX := make([][]float64, 0, len(y)-len(test))
		trainY := make([]int, 0, len(y)-len(test))
		for i := range y {
			if inFold[i] != f {
				trainX = append(trainX, X[i])
				trainY = append(trainY, y[i])
			}
		}
		testX := make([][]float64, len(test))
		testY := make([]int, len(test))
		for k, i := range test {
			testX[k] = X[i]
			testY[k] = y[i]
		}
		m, err := tr.Fit(trainX, trainY, p)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", f, err)
		}
		scores = append(scores, Accuracy(testY, m.Predict(testX)))
	}
	return scores, nil
}
