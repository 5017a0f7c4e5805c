package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mnistflow/internal/config"
	"mnistflow/internal/data"
	"mnistflow/internal/evaluation"
	"mnistflow/internal/models"
)

// CurveOptions controls the training sizes of a learning curve and where it
// is written. Empty paths skip that artefact.
type CurveOptions struct {
	Points int
	Min    int
	Log    bool
	CSV    string
	PNG    string
}

// LearningCurve loads, cleans, scales and splits as Run does, then fits the
// configured model on growing prefixes of the shuffled training rows.
func LearningCurve(ctx context.Context, cfg config.Config, opts CurveOptions, logger *zap.Logger) ([]evaluation.CurvePoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuração inválida: %w", err)
	}
	r := newRunner(cfg, "", logger)

	var ds *data.Dataset
	err := r.stage(ctx, "carga", func() (err error) {
		ds, err = r.load(ctx)
		return err
	})
	if err != nil {
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

	perm := r.rng.Perm(len(X))
	sx, sy := make([][]float64, len(X)), make([]int, len(y))
	for i, j := range perm {
		sx[i], sy[i] = X[j], y[j]
	}

	tr, err := models.NewTrainer(cfg.Model.Algo, r.log)
	if err != nil {
		return nil, err
	}
	var pts []evaluation.CurvePoint
	err = r.stage(ctx, "curva", func() (err error) {
		sizes := evaluation.CurveSizes(len(sx), opts.Points, opts.Min, opts.Log)
		pts, err = evaluation.LearningCurve(tr, cfg.Params(), sx, sy, Xt, yt, sizes, r.log)
		return err
	})
	if err != nil {
		return nil, err
	}
	if opts.CSV != "" {
		if err := evaluation.WriteCurveCSV(opts.CSV, pts); err != nil {
			r.log.Warn("Falha ao salvar CSV da curva", zap.Error(err))
		}
	}
	if opts.PNG != "" {
		if err := evaluation.PlotLearningCurve(opts.PNG, pts); err != nil {
			r.log.Warn("Falha ao salvar PNG da curva", zap.Error(err))
		} else {
			r.log.Info("Curva de aprendizagem gerada", zap.String("png", opts.PNG), zap.String("csv", opts.CSV))
		}
	}
	return pts, nil
}
