package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"mnistflow/internal/config"
	"mnistflow/internal/explore"
	"mnistflow/internal/pipeline"
	"mnistflow/pkg/utils"
)

type options struct {
	mode  string
	cols  []string
	bins  int
	hist  string
	row   int
	digit string
	curve pipeline.CurveOptions
	cfg   config.Config
}

func main() {
	logger := utils.Logger()
	defer logger.Sync()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		logger.Fatal("Argumentos inválidos", zap.Error(err))
	}
	if err := run(context.Background(), opts, os.Stdout, logger); err != nil {
		logger.Fatal("Falha na análise", zap.String("mode", opts.mode), zap.Error(err))
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("analyzer", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Arquivo de configuração (.yaml, .yml ou .toml)")
	mode := fs.String("mode", "describe", "Análise: describe|digit|curve")
	synthetic := fs.Int("synthetic", 0, "Gerar N linhas sintéticas em vez de baixar o dataset")
	limit := fs.Int("limit", 0, "Usar apenas as primeiras N linhas")
	cols := fs.String("cols", "", "Colunas separadas por vírgula (padrão: as da configuração)")
	bins := fs.Int("bins", 20, "Intervalos por histograma")
	hist := fs.String("hist", filepath.Join("reports", "histograms.png"), "PNG dos histogramas")
	row := fs.Int("row", 0, "Linha exibida no modo digit")
	digit := fs.String("digit", filepath.Join("reports", "digit.png"), "PNG do dígito")
	points := fs.Int("points", 8, "Quantidade de pontos na curva")
	curveMin := fs.Int("curve_min", 100, "Tamanho mínimo inicial da curva")
	curveLog := fs.Bool("curve_log", false, "Usar escala logarítmica para os tamanhos")
	curveCSV := fs.String("out_csv", filepath.Join("reports", "learning_curve.csv"), "CSV da curva")
	curvePNG := fs.String("out_img", filepath.Join("reports", "learning_curve.png"), "PNG da curva")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			return options{}, err
		}
	}
	if *synthetic > 0 {
		cfg.Dataset.Synthetic = *synthetic
	}
	if *limit > 0 {
		cfg.Dataset.Limit = *limit
	}
	o := options{
		mode:  *mode,
		cols:  cfg.Explore.Columns,
		bins:  *bins,
		hist:  *hist,
		row:   *row,
		digit: *digit,
		curve: pipeline.CurveOptions{Points: *points, Min: *curveMin, Log: *curveLog, CSV: *curveCSV, PNG: *curvePNG},
		cfg:   cfg,
	}
	if *cols != "" {
		o.cols = strings.Split(*cols, ",")
	}
	switch o.mode {
	case "describe", "digit", "curve":
	default:
		return o, fmt.Errorf("modo desconhecido %q (describe|digit|curve)", o.mode)
	}
	return o, nil
}

func run(ctx context.Context, o options, w io.Writer, logger *zap.Logger) error {
	if o.mode == "curve" {
		pts, err := pipeline.LearningCurve(ctx, o.cfg, o.curve, logger)
		if err != nil {
			return err
		}
		for _, p := range pts {
			fmt.Fprintf(w, "size=%d | train=%.3f | test=%.3f | f1=%.3f\n", p.Size, p.TrainAcc, p.TestAcc, p.TestF1)
		}
		return nil
	}

	ds, err := pipeline.LoadDataset(ctx, o.cfg, logger)
	if err != nil {
		return err
	}
	switch o.mode {
	case "digit":
		if o.row < 0 || o.row >= ds.Len() {
			return fmt.Errorf("linha %d fora de [0,%d)", o.row, ds.Len())
		}
		vals, err := ds.Row(o.row, ds.RawColumns())
		if err != nil {
			return err
		}
		art, err := explore.ASCII(vals)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "linha %d, rótulo %d\n%s", o.row, ds.Labels[o.row], art)
		title := fmt.Sprintf("Dígito %d", ds.Labels[o.row])
		if err := explore.RenderDigit(vals, title, o.digit); err != nil {
			return err
		}
		logger.Info("Dígito salvo", zap.String("path", o.digit))
	default:
		sums, err := explore.Describe(ds, o.cols)
		if err != nil {
			return err
		}
		if err := explore.PrintSummaries(w, sums); err != nil {
			return err
		}
		if o.hist == "" {
			return nil
		}
		if err := explore.Histogram(ds, o.cols, o.bins, o.hist); err != nil {
			return fmt.Errorf("histogramas: %w", err)
		}
		logger.Info("Histogramas salvos", zap.String("path", o.hist))
	}
	return nil
}
