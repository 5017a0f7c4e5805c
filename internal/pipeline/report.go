package pipeline

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"mnistflow/internal/evaluation"
	"mnistflow/internal/explore"
	"mnistflow/internal/models"
	"mnistflow/internal/search"
)

// Report is the JSON summary of one run, served by the API under /metrics.
type Report struct {
	RunID       string      `json:"run_id"`
	StartedAt   time.Time   `json:"started_at"`
	Dataset     string      `json:"dataset"`
	Rows        int         `json:"rows"`
	Features    int         `json:"features"`
	ClassCounts map[int]int `json:"class_counts"`

	Summaries      []explore.Summary `json:"summaries"`
	MissingColumns []string          `json:"missing_columns"`
	ImputedCells   int               `json:"imputed_cells"`
	ScalePolicy    string            `json:"scale_policy"`
	TrainRows      int               `json:"train_rows"`
	TestRows       int               `json:"test_rows"`

	Algo   string         `json:"algo"`
	Model  string         `json:"model"`
	Params models.Params  `json:"params"`
	Search *search.Result `json:"search,omitempty"`

	Accuracy  float64                    `json:"accuracy"`
	Confusion evaluation.ConfusionMatrix `json:"confusion"`
	PerClass  []evaluation.ClassReport   `json:"per_class"`
	CVScores  []float64                  `json:"cv_scores"`
	CVMean    float64                    `json:"cv_mean"`
	AUC       map[int]float64            `json:"auc"`
	MacroAUC  float64                    `json:"macro_auc"`
	Stages    map[string]float64         `json:"stage_seconds"`

	TopFeatures []FeatureWeight `json:"top_features,omitempty"`
}

type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

func SaveReport(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadReport(path string) (*Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
