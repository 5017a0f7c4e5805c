package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"

	"mnistflow/internal/data"
	"mnistflow/internal/features"
	"mnistflow/internal/models"
	"mnistflow/internal/search"
)

type Dataset struct {
	ID       string `yaml:"id" toml:"id" json:"id" validate:"required"`
	Format   string `yaml:"format" toml:"format" json:"format" validate:"oneof=idx csv"`
	BaseURL  string `yaml:"base_url" toml:"base_url" json:"base_url" validate:"omitempty,url"`
	CacheDir string `yaml:"cache_dir" toml:"cache_dir" json:"cache_dir" validate:"required"`
	Limit    int    `yaml:"limit" toml:"limit" json:"limit" validate:"gte=0"`
	// Synthetic > 0 writes a generated CSV of that many rows into CacheDir
	// under ID before loading, so runs work offline.
	Synthetic   int     `yaml:"synthetic" toml:"synthetic" json:"synthetic" validate:"gte=0"`
	MissingRate float64 `yaml:"missing_rate" toml:"missing_rate" json:"missing_rate" validate:"gte=0,lt=1"`
}

type Split struct {
	TestFraction float64 `yaml:"test_fraction" toml:"test_fraction" json:"test_fraction" validate:"gt=0,lt=1"`
	Stratified   bool    `yaml:"stratified" toml:"stratified" json:"stratified"`
	ScalePolicy  string  `yaml:"scale_policy" toml:"scale_policy" json:"scale_policy" validate:"oneof=fit_once fit_per_call"`
}

type Model struct {
	Algo   string        `yaml:"algo" toml:"algo" json:"algo" validate:"oneof=rf bagging dt gb"`
	Params models.Params `yaml:"params" toml:"params" json:"params"`
}

type CV struct {
	K          int  `yaml:"k" toml:"k" json:"k" validate:"gte=2"`
	Stratified bool `yaml:"stratified" toml:"stratified" json:"stratified"`
	Shuffle    bool `yaml:"shuffle" toml:"shuffle" json:"shuffle"`
}

type Search struct {
	Enabled      bool                   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Candidates   int                    `yaml:"candidates" toml:"candidates" json:"candidates" validate:"gte=1"`
	Factor       int                    `yaml:"factor" toml:"factor" json:"factor" validate:"gte=2"`
	MinResources int                    `yaml:"min_resources" toml:"min_resources" json:"min_resources" validate:"gte=0"`
	Space        map[string]search.Spec `yaml:"space" toml:"space" json:"space"`
}

// Explore lists the columns summarised in the run report.
type Explore struct {
	Columns []string `yaml:"columns" toml:"columns" json:"columns"`
}

// Output paths; an empty path skips that artefact.
type Output struct {
	Model  string `yaml:"model" toml:"model" json:"model"`
	Report string `yaml:"report" toml:"report" json:"report"`
	ROC    string `yaml:"roc" toml:"roc" json:"roc"`
	Scores string `yaml:"scores" toml:"scores" json:"scores"`
	DOT    string `yaml:"dot" toml:"dot" json:"dot"`
}

// Config drives one pipeline run. Seed, when set, seeds the split, the
// folds, the search and the model.
type Config struct {
	Seed    *int64  `yaml:"seed" toml:"seed" json:"seed,omitempty"`
	Dataset Dataset `yaml:"dataset" toml:"dataset" json:"dataset"`
	Explore Explore `yaml:"explore" toml:"explore" json:"explore"`
	Split   Split   `yaml:"split" toml:"split" json:"split"`
	Model   Model   `yaml:"model" toml:"model" json:"model"`
	CV      CV      `yaml:"cv" toml:"cv" json:"cv"`
	Search  Search  `yaml:"search" toml:"search" json:"search"`
	Output  Output  `yaml:"output" toml:"output" json:"output"`
}

func Default() Config {
	return Config{
		Dataset: Dataset{
			ID:       "mnist_784",
			Format:   string(data.FormatIDX),
			BaseURL:  data.DefaultBaseURL,
			CacheDir: filepath.Join("data", "mnist"),
		},
		Explore: Explore{Columns: []string{"pixel1", "pixel407", "pixel784"}},
		Split: Split{
			TestFraction: features.DefaultTestFraction,
			ScalePolicy:  string(features.FitOnce),
		},
		Model: Model{Algo: models.AlgoRandomForest, Params: models.DefaultParams()},
		CV:    CV{K: 3, Stratified: true, Shuffle: true},
		Search: Search{
			Candidates: search.DefaultCandidates,
			Factor:     search.DefaultFactor,
		},
		Output: Output{
			Model:  filepath.Join("models", "rf_model.gob"),
			Report: filepath.Join("reports", "report.json"),
			ROC:    filepath.Join("reports", "roc.png"),
			Scores: filepath.Join("reports", "cv_scores.png"),
			DOT:    filepath.Join("reports", "tree.dot"),
		},
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("extensão de configuração não suportada: %s", path)
	}
	if err != nil {
		return cfg, fmt.Errorf("ler %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs error
	if err := validate.Struct(c); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return err
		}
		for _, fe := range ves {
			errs = multierr.Append(errs, fmt.Errorf("%s: falha na regra %q (valor %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	if len(c.Search.Space) > 0 {
		if _, err := search.FromSpecs(c.Search.Space); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("search.space: %w", err))
		}
	}
	return errs
}

// SearchSpace returns the configured space, or the default one.
func (c Config) SearchSpace() (search.Space, error) {
	if len(c.Search.Space) == 0 {
		return search.DefaultSpace(), nil
	}
	return search.FromSpecs(c.Search.Space)
}

// Params returns the model parameters with the run seed applied when the
// model has none of its own.
func (c Config) Params() models.Params {
	p := c.Model.Params
	if p.Seed == nil && c.Seed != nil {
		p = p.WithSeed(*c.Seed)
	}
	return p
}
