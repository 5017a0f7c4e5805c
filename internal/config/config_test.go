package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"mnistflow/internal/models"
	"mnistflow/internal/search"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := write(t, "run.yaml", `
seed: 42
dataset:
  format: csv
  id: digits
  limit: 500
model:
  algo: bagging
  params:
    n_estimators: 25
    max_depth: 8
search:
  enabled: true
  candidates: 6
  space:
    max_depth:
      values: [4, 8, 12]
    min_samples_leaf:
      low: 1
      high: 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dataset.Format != "csv" || cfg.Dataset.ID != "digits" || cfg.Dataset.Limit != 500 {
		t.Fatalf("dataset = %+v", cfg.Dataset)
	}
	if cfg.Dataset.CacheDir == "" || cfg.Split.TestFraction != 0.25 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Dataset, cfg.Split)
	}
	p := cfg.Params()
	if p.NEstimators != 25 || p.MaxDepth != 8 || p.MinSamplesSplit != 2 {
		t.Fatalf("params = %s", p)
	}
	if p.Seed == nil || *p.Seed != 42 {
		t.Fatalf("run seed not applied to params")
	}
	space, err := cfg.SearchSpace()
	if err != nil {
		t.Fatalf("space: %v", err)
	}
	if _, ok := space[models.ParamMaxDepth].(search.Choice); !ok {
		t.Fatalf("max_depth should be a choice: %#v", space)
	}
	if r, ok := space[models.ParamMinSamplesLeaf].(search.IntRange); !ok || r.High != 4 {
		t.Fatalf("min_samples_leaf should be [1,4]: %#v", space)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := write(t, "run.toml", `
[split]
test_fraction = 0.2
scale_policy = "fit_per_call"

[cv]
k = 5

[model]
algo = "dt"

[model.params]
n_estimators = 1
min_samples_split = 4
min_samples_leaf = 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Split.TestFraction != 0.2 || cfg.Split.ScalePolicy != "fit_per_call" || cfg.CV.K != 5 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Model.Algo != "dt" || cfg.Model.Params.MinSamplesLeaf != 2 {
		t.Fatalf("model = %+v", cfg.Model)
	}
	if cfg.Params().Seed != nil {
		t.Fatalf("no seed configured")
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Dataset.Format = "parquet"
	cfg.Split.TestFraction = 1.5
	cfg.Model.Params.NEstimators = 0
	cfg.CV.K = 1
	cfg.Search.Space = map[string]search.Spec{"gamma": {Values: []int{1}}}

	err := cfg.Validate()
	errs := multierr.Errors(err)
	if len(errs) != 5 {
		t.Fatalf("got %d errors: %v", len(errs), err)
	}
	for _, want := range []string{"Format", "TestFraction", "NEstimators", "K", "search.space"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestLoad_Failures(t *testing.T) {
	if _, err := Load(write(t, "run.json", "{}")); err == nil {
		t.Fatalf("expected unsupported extension")
	}
	if _, err := Load(write(t, "bad.yaml", "split:\n  test_fraction: 0\n")); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
