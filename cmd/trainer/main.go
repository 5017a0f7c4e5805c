package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mnistflow/internal/config"
	"mnistflow/internal/evaluation"
	"mnistflow/internal/pipeline"
	"mnistflow/pkg/utils"
)

func main() {
	logger, runID := utils.RunLogger()
	defer logger.Sync()

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		logger.Fatal("Configuração inválida", zap.Error(err))
	}
	logger.Info("Iniciando execução",
		zap.String("dataset", cfg.Dataset.ID),
		zap.String("algo", cfg.Model.Algo),
		zap.String("params", cfg.Params().String()),
		zap.Bool("search", cfg.Search.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, cfg, runID, logger)
	if err != nil {
		logger.Fatal("Falha na execução", zap.Error(err))
	}
	rep := res.Report
	fmt.Println("Modelo:", rep.Model, rep.Params)
	fmt.Printf("Acurácia holdout: %.4f | validação cruzada: %.4f | AUC macro: %.4f\n", rep.Accuracy, rep.CVMean, rep.MacroAUC)
	rep.Confusion.Print(os.Stdout)
	evaluation.PrintReport(os.Stdout, rep.PerClass)
}

// parseFlags reads -config (YAML or TOML) over the defaults, then applies
// only the flags given on the command line.
func parseFlags(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("trainer", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Arquivo de configuração (.yaml, .yml ou .toml)")
	id := fs.String("dataset", "", "Identificador do dataset")
	format := fs.String("format", "", "Formato do dataset: idx|csv")
	cacheDir := fs.String("cache", "", "Diretório de cache do dataset")
	limit := fs.Int("limit", 0, "Usar apenas as primeiras N linhas")
	synthetic := fs.Int("synthetic", 0, "Gerar N linhas sintéticas em vez de baixar o dataset")
	policy := fs.String("scale", "", "Política de escala: fit_once|fit_per_call")
	stratified := fs.Bool("stratified", false, "Partição treino/teste estratificada")
	algo := fs.String("algo", "", "Algoritmo: rf|bagging|dt|gb")
	estimators := fs.Int("estimators", 0, "Número de estimadores (rf/bagging/gb)")
	maxDepth := fs.Int("max_depth", 0, "Profundidade máxima da árvore (0 = ilimitada)")
	minSamples := fs.Int("min_samples", 0, "Mínimo de amostras para split")
	lr := fs.Float64("lr", 0, "Learning rate para GradientBoosting")
	jobs := fs.Int("jobs", 0, "Workers de treino (0 = um por núcleo)")
	seed := fs.Int64("seed", 0, "Semente da execução")
	search := fs.Bool("search", false, "Busca aleatória com successive halving")
	candidates := fs.Int("candidates", 0, "Candidatos da busca")
	folds := fs.Int("cv", 0, "Número de folds da validação cruzada")
	modelOut := fs.String("out", "", "Caminho do modelo salvo")
	reportOut := fs.String("report", "", "Caminho do relatório JSON")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			return cfg, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataset":
			cfg.Dataset.ID = *id
		case "format":
			cfg.Dataset.Format = *format
		case "cache":
			cfg.Dataset.CacheDir = *cacheDir
		case "limit":
			cfg.Dataset.Limit = *limit
		case "synthetic":
			cfg.Dataset.Synthetic = *synthetic
		case "scale":
			cfg.Split.ScalePolicy = *policy
		case "stratified":
			cfg.Split.Stratified = *stratified
		case "algo":
			cfg.Model.Algo = *algo
		case "estimators":
			cfg.Model.Params.NEstimators = *estimators
		case "max_depth":
			cfg.Model.Params.MaxDepth = *maxDepth
		case "min_samples":
			cfg.Model.Params.MinSamplesSplit = *minSamples
		case "lr":
			cfg.Model.Params.LearningRate = *lr
		case "jobs":
			cfg.Model.Params.Jobs = *jobs
		case "seed":
			cfg.Seed = seed
		case "search":
			cfg.Search.Enabled = *search
		case "candidates":
			cfg.Search.Candidates = *candidates
		case "cv":
			cfg.CV.K = *folds
		case "out":
			cfg.Output.Model = *modelOut
		case "report":
			cfg.Output.Report = *reportOut
		}
	})
	return cfg, cfg.Validate()
}
