package features

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"mnistflow/internal/data"
)

const DefaultTestFraction = 0.25

// Split is a row partition of one dataset. TrainRows and TestRows index the
// source dataset.
type Split struct {
	Train     *data.Dataset
	Test      *data.Dataset
	TrainRows []int
	TestRows  []int
}

// NewRand returns a source seeded with seed, or with the clock when seed is
// nil.
func NewRand(seed *int64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(*seed))
}

func checkFraction(n int, testFraction float64) (int, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return 0, fmt.Errorf("fração de teste deve estar em (0,1): %v", testFraction)
	}
	if n < 2 {
		return 0, &data.ShapeError{Op: "TrainTestSplit", Msg: fmt.Sprintf("%d linhas não podem ser particionadas", n)}
	}
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest >= n {
		nTest = n - 1
	}
	return nTest, nil
}

// TrainTestSplit shuffles the row indices with rng and assigns the first
// ceil(n*testFraction) to test.
func TrainTestSplit(ds *data.Dataset, testFraction float64, rng *rand.Rand) (Split, error) {
	n := ds.Len()
	nTest, err := checkFraction(n, testFraction)
	if err != nil {
		return Split{}, err
	}
	if rng == nil {
		rng = NewRand(nil)
	}
	perm := rng.Perm(n)
	return subsets(ds, perm[nTest:], perm[:nTest]), nil
}

// StratifiedSplit applies the test fraction within each class. Per-class
// test counts are the floors of their quotas, plus one for the classes with
// the largest remainders, so the total matches TrainTestSplit.
func StratifiedSplit(ds *data.Dataset, testFraction float64, rng *rand.Rand) (Split, error) {
	nTest, err := checkFraction(ds.Len(), testFraction)
	if err != nil {
		return Split{}, err
	}
	if rng == nil {
		rng = NewRand(nil)
	}
	byClass := map[int][]int{}
	for i, l := range ds.Labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := ds.Classes()
	k := make([]int, len(classes))
	rem := make([]float64, len(classes))
	left := nTest
	for i, c := range classes {
		q := float64(len(byClass[c])) * testFraction
		k[i] = int(math.Floor(q))
		rem[i] = q - float64(k[i])
		left -= k[i]
	}
	order := make([]int, len(classes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })
	for left > 0 {
		given := false
		for _, i := range order {
			if left == 0 {
				break
			}
			if k[i] < len(byClass[classes[i]]) {
				k[i]++
				left--
				given = true
			}
		}
		if !given {
			break
		}
	}

	var trainRows, testRows []int
	for ci, c := range classes {
		rows := byClass[c]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		testRows = append(testRows, rows[:k[ci]]...)
		trainRows = append(trainRows, rows[k[ci]:]...)
	}
	if len(testRows) == 0 || len(trainRows) == 0 {
		return Split{}, &data.ShapeError{Op: "StratifiedSplit", Msg: fmt.Sprintf("partição vazia: treino %d, teste %d", len(trainRows), len(testRows))}
	}
	rng.Shuffle(len(trainRows), func(i, j int) { trainRows[i], trainRows[j] = trainRows[j], trainRows[i] })
	rng.Shuffle(len(testRows), func(i, j int) { testRows[i], testRows[j] = testRows[j], testRows[i] })
	return subsets(ds, trainRows, testRows), nil
}

func subsets(ds *data.Dataset, trainRows, testRows []int) Split {
	return Split{
		Train:     ds.Subset(trainRows),
		Test:      ds.Subset(testRows),
		TrainRows: trainRows,
		TestRows:  testRows,
	}
}

// SortedRows returns a sorted copy, handy to compare partitions.
func SortedRows(rows []int) []int {
	out := append([]int(nil), rows...)
	sort.Ints(out)
	return out
}

// XY separates ds into a feature matrix made of the scaled columns, in
// column order, and the label vector.
func XY(ds *data.Dataset) ([][]float64, []int, error) {
	cols := ds.ScaledColumns()
	if len(cols) == 0 {
		return nil, nil, &data.ShapeError{Op: "XY", Msg: "nenhuma coluna escalada"}
	}
	src := make([][]float64, len(cols))
	for j, c := range cols {
		col, err := ds.Column(c)
		if err != nil {
			return nil, nil, err
		}
		src[j] = col
	}
	X := make([][]float64, ds.Len())
	for i := range X {
		row := make([]float64, len(cols))
		for j, col := range src {
			row[j] = col[i]
		}
		X[i] = row
	}
	y := append([]int(nil), ds.Labels...)
	return X, y, nil
}
