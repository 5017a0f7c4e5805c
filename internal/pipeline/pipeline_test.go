package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"mnistflow/internal/config"
	"mnistflow/internal/data"
	"mnistflow/internal/models"
	"mnistflow/internal/search"
)

func testConfig(t *testing.T, cache string) config.Config {
	t.Helper()
	out := t.TempDir()
	seed := int64(3)
	cfg := config.Default()
	cfg.Seed = &seed
	cfg.Dataset.ID = "digits"
	cfg.Dataset.Format = "csv"
	cfg.Dataset.CacheDir = cache
	cfg.Dataset.Synthetic = 300
	cfg.Dataset.MissingRate = 0.01
	cfg.Model.Params.NEstimators = 10
	cfg.Output = config.Output{
		Model:  filepath.Join(out, "model.gob"),
		Report: filepath.Join(out, "report.json"),
		ROC:    filepath.Join(out, "roc.png"),
		Scores: filepath.Join(out, "cv.png"),
		DOT:    filepath.Join(out, "tree.dot"),
	}
	return cfg
}

func TestRun_SyntheticEndToEnd(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	res, err := Run(context.Background(), cfg, "run-1", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rep := res.Report
	if rep.Rows != 300 || rep.Features != data.NumFeatures {
		t.Fatalf("rows=%d features=%d", rep.Rows, rep.Features)
	}
	if rep.TrainRows+rep.TestRows != 300 || rep.TestRows != 75 {
		t.Fatalf("split %d/%d", rep.TrainRows, rep.TestRows)
	}
	if len(rep.MissingColumns) == 0 || rep.ImputedCells == 0 {
		t.Fatalf("synthetic data should have had missing cells")
	}
	if rep.Confusion.Total() != rep.TestRows {
		t.Fatalf("confusion total %d", rep.Confusion.Total())
	}
	if rep.Accuracy < 0.8 {
		t.Fatalf("holdout accuracy %.3f", rep.Accuracy)
	}
	if len(rep.CVScores) != 3 {
		t.Fatalf("cv scores %v", rep.CVScores)
	}
	if rep.MacroAUC < 0.5 || rep.MacroAUC > 1 {
		t.Fatalf("macro AUC %v", rep.MacroAUC)
	}
	if len(rep.TopFeatures) != topFeatureCount || rep.TopFeatures[0].Weight < rep.TopFeatures[9].Weight {
		t.Fatalf("top features %+v", rep.TopFeatures)
	}
	if len(rep.Summaries) != 3 {
		t.Fatalf("summaries %+v", rep.Summaries)
	}
	for _, p := range []string{cfg.Output.Model, cfg.Output.Report, cfg.Output.ROC, cfg.Output.Scores, cfg.Output.DOT} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("artefact %s: %v", p, err)
		}
	}

	loaded, err := LoadReport(cfg.Output.Report)
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	if loaded.RunID != "run-1" || loaded.Accuracy != rep.Accuracy || !reflect.DeepEqual(loaded.CVScores, rep.CVScores) {
		t.Fatalf("report did not round-trip: %+v", loaded)
	}
	b, err := models.Load(cfg.Output.Model)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	if b.Model.Name() != "RandomForest" {
		t.Fatalf("model %s", b.Model.Name())
	}
	if b.Scaler == nil || len(b.Scaler.Columns) != data.NumFeatures || !reflect.DeepEqual(b.Scaler, res.Scaler) {
		t.Fatalf("saved scaler %+v", b.Scaler)
	}
}

func TestRun_SameSeedSameReport(t *testing.T) {
	cache := t.TempDir()
	a, err := Run(context.Background(), testConfig(t, cache), "a", nil)
	if err != nil {
		t.Fatalf("run a: %v", err)
	}
	// the second run reads the cached CSV instead of generating it
	b, err := Run(context.Background(), testConfig(t, cache), "b", nil)
	if err != nil {
		t.Fatalf("run b: %v", err)
	}
	if a.Report.Accuracy != b.Report.Accuracy ||
		!reflect.DeepEqual(a.Report.CVScores, b.Report.CVScores) ||
		!reflect.DeepEqual(a.Report.Confusion, b.Report.Confusion) {
		t.Fatalf("same seed gave different runs")
	}
}

func TestRun_PoliciesAndSearch(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Split.ScalePolicy = "fit_per_call"
	cfg.Split.Stratified = true
	cfg.Search.Enabled = true
	cfg.Search.Candidates = 4
	cfg.Search.Space = map[string]search.Spec{
		models.ParamNEstimators: {Values: []int{3, 6}},
		models.ParamMaxDepth:    {Low: 2, High: 6},
	}
	res, err := Run(context.Background(), cfg, "s", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rep := res.Report
	if rep.Search == nil || len(rep.Search.Rounds) == 0 {
		t.Fatalf("search not recorded")
	}
	if rep.Params != rep.Search.BestParams {
		t.Fatalf("report params %s, search best %s", rep.Params, rep.Search.BestParams)
	}
	if rep.ScalePolicy != "fit_per_call" {
		t.Fatalf("policy %s", rep.ScalePolicy)
	}
	if res.Scaler == nil || len(res.Scaler.Columns) != data.NumFeatures {
		t.Fatalf("full-data scaler not kept: %+v", res.Scaler)
	}
}

func TestRun_Failures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := testConfig(t, t.TempDir())
	cfg.Dataset.Synthetic = 0
	cfg.Dataset.BaseURL = srv.URL
	_, err := Run(context.Background(), cfg, "x", nil)
	var re *data.RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetrievalError, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, testConfig(t, t.TempDir()), "x", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	bad := testConfig(t, t.TempDir())
	bad.Split.TestFraction = 0
	if _, err := Run(context.Background(), bad, "x", nil); err == nil {
		t.Fatalf("expected invalid configuration")
	}
}

func TestLearningCurve_Synthetic(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Model.Algo = models.AlgoDecisionTree
	dir := t.TempDir()
	opts := CurveOptions{Points: 3, Min: 30, CSV: filepath.Join(dir, "lc.csv"), PNG: filepath.Join(dir, "lc.png")}
	pts, err := LearningCurve(context.Background(), cfg, opts, nil)
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	if len(pts) != 3 || pts[0].Size != 30 || pts[2].Size != 225 {
		t.Fatalf("points %+v", pts)
	}
	for _, p := range []string{opts.CSV, opts.PNG} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("artefact %s: %v", p, err)
		}
	}
}

func TestLoadDataset_Limit(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Dataset.Limit = 50
	ds, err := LoadDataset(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.Len() != 50 {
		t.Fatalf("rows %d", ds.Len())
	}
}
