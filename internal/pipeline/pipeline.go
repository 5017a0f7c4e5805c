package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"mnistflow/internal/config"
	"mnistflow/internal/data"
	"mnistflow/internal/evaluation"
	"mnistflow/internal/explore"
	"mnistflow/internal/features"
	"mnistflow/internal/models"
	"mnistflow/internal/search"
)

// Result is what one run leaves behind in memory.
type Result struct {
	Report *Report
	Model  models.Classifier
	Scaler *features.MinMaxScaler
	Curves []evaluation.Curve
}

type runner struct {
	cfg    config.Config
	log    *zap.Logger
	rng    *rand.Rand
	report *Report
	scaler *features.MinMaxScaler
}

// Run executes load, explore, clean, scale, split, train (or search) and
// evaluate, in that order, then writes the configured artefacts. Any stage
// error aborts the run; ctx is checked between stages.
func Run(ctx context.Context, cfg config.Config, runID string, logger *zap.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuração inválida: %w", err)
	}
	r := newRunner(cfg, runID, logger)

	var ds *data.Dataset
	err := r.stage(ctx, "carga", func() (err error) {
		ds, err = r.load(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := r.stage(ctx, "exploracao", func() error { return r.describe(ds) }); err != nil {
		return nil, err
	}
	if err := r.stage(ctx, "limpeza", func() error { return r.clean(ds) }); err != nil {
		return nil, err
	}

	var X, Xt [][]float64
	var y, yt []int
	err = r.stage(ctx, "escala_particao", func() (err error) {
		X, y, Xt, yt, err = r.scaleSplit(ds)
		return err
	})
	if err != nil {
		return nil, err
	}

	tr, err := models.NewTrainer(cfg.Model.Algo, r.log)
	if err != nil {
		return nil, err
	}
	var model models.Classifier
	err = r.stage(ctx, "treino", func() (err error) {
		model, err = r.train(tr, X, y)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Report: r.report, Model: model, Scaler: r.scaler}
	err = r.stage(ctx, "avaliacao", func() (err error) {
		res.Curves, err = r.evaluate(tr, model, X, y, Xt, yt)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := r.stage(ctx, "artefatos", func() error { return r.write(res, ds) }); err != nil {
		return nil, err
	}
	r.log.Info("Execução concluída",
		zap.String("model", r.report.Model),
		zap.Float64("accuracy", r.report.Accuracy),
		zap.Float64("cv_mean", r.report.CVMean),
		zap.Float64("macro_auc", r.report.MacroAUC),
	)
	return res, nil
}

func newRunner(cfg config.Config, runID string, logger *zap.Logger) *runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &runner{
		cfg: cfg,
		log: logger,
		rng: features.NewRand(cfg.Seed),
		report: &Report{
			RunID:       runID,
			StartedAt:   time.Now().UTC(),
			ScalePolicy: cfg.Split.ScalePolicy,
			Algo:        cfg.Model.Algo,
			Stages:      map[string]float64{},
		},
	}
}

// LoadDataset runs only the load stage of cfg.
func LoadDataset(ctx context.Context, cfg config.Config, logger *zap.Logger) (*data.Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuração inválida: %w", err)
	}
	return newRunner(cfg, "", logger).load(ctx)
}

func (r *runner) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	start := time.Now()
	if err := fn(); err != nil {
		r.log.Error("Falha na etapa", zap.String("etapa", name), zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	d := time.Since(start)
	r.report.Stages[name] = d.Seconds()
	r.log.Info("Etapa concluída", zap.String("etapa", name), zap.Duration("duracao", d))
	return nil
}

func (r *runner) load(ctx context.Context) (*data.Dataset, error) {
	dc := r.cfg.Dataset
	format := data.Format(dc.Format)
	if dc.Synthetic > 0 {
		if err := ensureSynthetic(dc, features.NewRand(r.cfg.Seed)); err != nil {
			return nil, err
		}
		format = data.FormatCSV
	}
	l := data.NewLoader(dc.BaseURL, dc.CacheDir, format)
	l.Limit = dc.Limit
	l.Logger = r.log
	ds, err := l.Load(ctx, dc.ID)
	if err != nil {
		return nil, err
	}
	r.report.Dataset = ds.Name
	r.report.Rows = ds.Len()
	r.report.Features = len(ds.RawColumns())
	r.report.ClassCounts = map[int]int{}
	for _, lab := range ds.Labels {
		r.report.ClassCounts[lab]++
	}
	return ds, nil
}

// ensureSynthetic writes <CacheDir>/<ID>.csv unless it is already cached.
func ensureSynthetic(dc config.Dataset, rng *rand.Rand) error {
	path := filepath.Join(dc.CacheDir, dc.ID+".csv")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return data.WriteCSV(data.Synthetic(dc.Synthetic, dc.MissingRate, rng), path)
}

func (r *runner) describe(ds *data.Dataset) error {
	cols := make([]string, 0, len(r.cfg.Explore.Columns))
	for _, c := range r.cfg.Explore.Columns {
		if ds.Has(c) {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	sums, err := explore.Describe(ds, cols)
	if err != nil {
		return err
	}
	r.report.Summaries = sums
	return nil
}

func (r *runner) clean(ds *data.Dataset) error {
	missing := features.MissingColumns(ds)
	r.report.MissingColumns = missing
	if len(missing) == 0 {
		return nil
	}
	_, filled, err := features.ImputeMean(ds)
	if err != nil {
		return err
	}
	for _, n := range filled {
		r.report.ImputedCells += n
	}
	r.log.Info("Valores ausentes imputados",
		zap.Int("colunas", len(missing)),
		zap.Int("celulas", r.report.ImputedCells),
	)
	if left := features.MissingColumns(ds); len(left) > 0 {
		return &data.ImputationError{Column: left[0]}
	}
	return nil
}

func (r *runner) scaleSplit(ds *data.Dataset) (X [][]float64, y []int, Xt [][]float64, yt []int, err error) {
	policy, err := features.ParseScalePolicy(r.cfg.Split.ScalePolicy)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	raw := ds.RawColumns()
	if policy == features.FitPerCall {
		if r.scaler, err = features.ScaleColumns(ds, raw); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	split := features.TrainTestSplit
	if r.cfg.Split.Stratified {
		split = features.StratifiedSplit
	}
	sp, err := split(ds, r.cfg.Split.TestFraction, r.rng)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if policy == features.FitOnce {
		sc, err := features.FitMinMax(sp.Train, raw)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := sc.Transform(sp.Train); err != nil {
			return nil, nil, nil, nil, err
		}
		if err := sc.Transform(sp.Test); err != nil {
			return nil, nil, nil, nil, err
		}
		r.scaler = sc
	}
	r.report.TrainRows, r.report.TestRows = sp.Train.Len(), sp.Test.Len()
	if X, y, err = features.XY(sp.Train); err != nil {
		return nil, nil, nil, nil, err
	}
	if Xt, yt, err = features.XY(sp.Test); err != nil {
		return nil, nil, nil, nil, err
	}
	return X, y, Xt, yt, nil
}

func (r *runner) train(tr models.Trainer, X [][]float64, y []int) (models.Classifier, error) {
	p := r.cfg.Params()
	if !r.cfg.Search.Enabled {
		r.report.Params = p
		m, err := tr.Fit(X, y, p)
		if err != nil {
			return nil, err
		}
		r.report.Model = m.Name()
		return m, nil
	}
	space, err := r.cfg.SearchSpace()
	if err != nil {
		return nil, err
	}
	s := &search.HalvingRandomSearch{
		Trainer:      tr,
		Base:         p,
		Space:        space,
		Candidates:   r.cfg.Search.Candidates,
		Factor:       r.cfg.Search.Factor,
		MinResources: r.cfg.Search.MinResources,
		CV:           r.kfold(),
		Logger:       r.log,
	}
	res, err := s.Fit(X, y, r.rng)
	if err != nil {
		return nil, err
	}
	r.report.Search = &res
	r.report.Params = res.BestParams
	r.report.Model = res.BestModel.Name()
	return res.BestModel, nil
}

func (r *runner) kfold() evaluation.KFold {
	return evaluation.KFold{K: r.cfg.CV.K, Stratified: r.cfg.CV.Stratified, Shuffle: r.cfg.CV.Shuffle}
}

func (r *runner) evaluate(tr models.Trainer, m models.Classifier, X [][]float64, y []int, Xt [][]float64, yt []int) ([]evaluation.Curve, error) {
	pred := m.Predict(Xt)
	cm, err := evaluation.Confusion(yt, pred)
	if err != nil {
		return nil, err
	}
	r.report.Confusion = cm
	r.report.Accuracy = evaluation.Accuracy(yt, pred)
	r.report.PerClass = cm.Report()

	scores, err := evaluation.CrossValScore(tr, r.report.Params, X, y, r.kfold(), r.rng)
	if err != nil {
		return nil, fmt.Errorf("validação cruzada: %w", err)
	}
	r.report.CVScores = scores
	r.report.CVMean = stat.Mean(scores, nil)

	curves, err := evaluation.ROC(m, Xt, yt)
	if err != nil {
		return nil, err
	}
	r.report.AUC = make(map[int]float64, len(curves))
	for _, c := range curves {
		r.report.AUC[c.Label] = c.AUC
	}
	r.report.MacroAUC = evaluation.MacroAUC(curves)
	r.log.Info("Métricas holdout",
		zap.String("model", m.Name()),
		zap.Float64("accuracy", r.report.Accuracy),
		zap.Float64s("cv_scores", scores),
		zap.Float64("macro_auc", r.report.MacroAUC),
	)
	return curves, nil
}

func (r *runner) write(res *Result, ds *data.Dataset) error {
	out := r.cfg.Output
	if out.Model != "" {
		if err := models.Save(out.Model, models.Bundle{Model: res.Model, Scaler: res.Scaler}); err != nil {
			return fmt.Errorf("salvar modelo: %w", err)
		}
		r.log.Info("Modelo salvo", zap.String("path", out.Model))
	}
	if out.ROC != "" && len(res.Curves) > 0 {
		if err := evaluation.PlotROC(res.Curves, out.ROC); err != nil {
			r.log.Warn("Falha ao salvar curvas ROC", zap.Error(err))
		}
	}
	if out.Scores != "" {
		if err := evaluation.PlotScores(r.report.CVScores, out.Scores); err != nil {
			r.log.Warn("Falha ao salvar gráfico da validação cruzada", zap.Error(err))
		}
	}
	if out.DOT != "" {
		if dt := firstTree(res.Model); dt != nil {
			if err := writeDOT(out.DOT, dt, scaledNames(ds)); err != nil {
				r.log.Warn("Falha ao exportar árvore", zap.Error(err))
			}
		}
	}
	r.report.TopFeatures = topFeatures(res.Model, scaledNames(ds), topFeatureCount)
	if out.Report != "" {
		if err := SaveReport(out.Report, r.report); err != nil {
			return fmt.Errorf("salvar relatório: %w", err)
		}
		r.log.Info("Relatório salvo", zap.String("path", out.Report))
	}
	return nil
}

const topFeatureCount = 10

// topFeatures lists the k heaviest features of models that report impurity
// importances; nil otherwise.
func topFeatures(m models.Classifier, names []string, k int) []FeatureWeight {
	fi, ok := m.(interface{ FeatureImportances() []float64 })
	if !ok {
		return nil
	}
	imp := fi.FeatureImportances()
	if len(imp) != len(names) {
		return nil
	}
	out := make([]FeatureWeight, len(imp))
	for i, w := range imp {
		out[i] = FeatureWeight{Feature: names[i], Weight: w}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out[:min(k, len(out))]
}

func firstTree(m models.Classifier) *models.DecisionTree {
	switch v := m.(type) {
	case *models.DecisionTree:
		return v
	case *models.RandomForest:
		if len(v.Trees) > 0 {
			return v.Trees[0]
		}
	}
	return nil
}

func scaledNames(ds *data.Dataset) []string {
	raw := ds.RawColumns()
	out := make([]string, len(raw))
	for i, c := range raw {
		out[i] = data.ScaledName(c)
	}
	return out
}

func writeDOT(path string, dt *models.DecisionTree, names []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := models.ExportDOT(f, dt, names); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
