package search

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"mnistflow/internal/data"
	"mnistflow/internal/evaluation"
	"mnistflow/internal/models"
)

const (
	DefaultCandidates = 8
	DefaultFactor     = 2
	DefaultCVFolds    = 3
)

// HalvingRandomSearch samples Candidates configurations from Space and
// scores them by cross-validated accuracy on a growing prefix of a seeded
// row permutation. After each round only the best ceil(n/Factor) survive
// and the prefix grows by Factor, until one candidate is left or the prefix
// covers every row.
type HalvingRandomSearch struct {
	Trainer      models.Trainer
	Base         models.Params
	Space        Space
	Candidates   int
	Factor       int
	MinResources int
	CV           evaluation.KFold
	Logger       *zap.Logger
}

// Round records the candidates scored at one resource level. Candidates
// hold indices into Result.Candidates, best first.
type Round struct {
	Iteration  int       `json:"iteration"`
	Resources  int       `json:"resources"`
	Candidates []int     `json:"candidates"`
	Scores     []float64 `json:"scores"`
}

type Result struct {
	BestIndex  int               `json:"best_index"`
	BestParams models.Params     `json:"best_params"`
	BestScore  float64           `json:"best_score"`
	BestModel  models.Classifier `json:"-"`
	Candidates []models.Params   `json:"candidates"`
	Rounds     []Round           `json:"rounds"`
}

// Fit runs the search. All sampling and fold assignment is drawn from rng,
// so a fixed rng together with a fixed Base.Seed gives the same Result.
func (s *HalvingRandomSearch) Fit(X [][]float64, y []int, rng *rand.Rand) (Result, error) {
	if err := data.CheckXY("HalvingRandomSearch.Fit", X, y); err != nil {
		return Result{}, err
	}
	if s.Trainer == nil {
		return Result{}, errors.New("busca sem trainer")
	}
	if rng == nil {
		return Result{}, errors.New("busca exige uma fonte aleatória")
	}
	if err := s.Space.Validate(); err != nil {
		return Result{}, fmt.Errorf("espaço de busca inválido: %w", err)
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	nCand := s.Candidates
	if nCand <= 0 {
		nCand = DefaultCandidates
	}
	factor := s.Factor
	if factor < 2 {
		factor = DefaultFactor
	}
	cv := s.CV
	if cv.K < 2 {
		cv.K = DefaultCVFolds
	}
	n := len(y)
	r := s.MinResources
	if r <= 0 {
		r = 2 * cv.K * len(data.DistinctLabels(y))
	}
	r = min(max(r, cv.K), n)
	if r < cv.K {
		return Result{}, &data.ShapeError{Op: "HalvingRandomSearch.Fit", Msg: fmt.Sprintf("%d linhas não bastam para %d folds", n, cv.K)}
	}

	res := Result{Candidates: make([]models.Params, nCand)}
	for c := range res.Candidates {
		p, err := s.Space.Sample(s.Base, rng)
		if err != nil {
			return Result{}, err
		}
		res.Candidates[c] = p
	}
	perm := rng.Perm(n)

	alive := make([]int, nCand)
	for c := range alive {
		alive[c] = c
	}
	last := make([]float64, nCand)
	for iter := 0; ; iter++ {
		start := time.Now()
		subX := make([][]float64, r)
		subY := make([]int, r)
		for i, row := range perm[:r] {
			subX[i] = X[row]
			subY[i] = y[row]
		}
		foldSeed := rng.Int63()
		for _, c := range alive {
			scores, err := evaluation.CrossValScore(s.Trainer, res.Candidates[c], subX, subY, cv, rand.New(rand.NewSource(foldSeed)))
			if err != nil {
				return Result{}, fmt.Errorf("candidato %d, rodada %d: %w", c, iter, err)
			}
			last[c] = stat.Mean(scores, nil)
		}
		// equal scores keep the previous rank, candidate order in round 0
		sort.SliceStable(alive, func(i, j int) bool { return last[alive[i]] > last[alive[j]] })
		round := Round{Iteration: iter, Resources: r, Candidates: append([]int(nil), alive...), Scores: make([]float64, len(alive))}
		for i, c := range alive {
			round.Scores[i] = last[c]
		}
		res.Rounds = append(res.Rounds, round)
		log.Info("Rodada de busca",
			zap.Int("iteracao", iter),
			zap.Int("recursos", r),
			zap.Int("candidatos", len(alive)),
			zap.Float64("melhor_score", last[alive[0]]),
			zap.Duration("duracao", time.Since(start)),
		)

		if len(alive) == 1 || r == n {
			break
		}
		alive = alive[:(len(alive)+factor-1)/factor]
		if len(alive) == 1 {
			break
		}
		r = min(r*factor, n)
	}

	res.BestIndex = alive[0]
	res.BestParams = res.Candidates[res.BestIndex]
	res.BestScore = last[res.BestIndex]
	m, err := s.Trainer.Fit(X, y, res.BestParams)
	if err != nil {
		return Result{}, fmt.Errorf("refit do melhor candidato: %w", err)
	}
	res.BestModel = m
	log.Info("Busca concluída",
		zap.Int("melhor", res.BestIndex),
		zap.Stringer("params", res.BestParams),
		zap.Float64("score", res.BestScore),
		zap.Int("rodadas", len(res.Rounds)),
	)
	return res, nil
}
