package evaluation

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"mnistflow/internal/data"
	"mnistflow/internal/models"
)

// CurvePoint is one training-set size of a learning curve.
type CurvePoint struct {
	Size     int     `json:"size"`
	TrainAcc float64 `json:"train_acc"`
	TestAcc  float64 `json:"test_acc"`
	TrainF1  float64 `json:"train_f1"`
	TestF1   float64 `json:"test_f1"`
}

// CurveSizes spreads points training sizes between min and total, either
// linearly or geometrically. Sizes are strictly increasing and the last one
// is always total.
func CurveSizes(total, points, min int, useLog bool) []int {
	if total <= 0 {
		return nil
	}
	if points < 2 {
		points = 2
	}
	if min < 1 {
		min = 1
	}
	if min > total {
		min = int(math.Max(1, float64(total)/2))
	}
	sizes := make([]int, 0, points)
	if useLog {
		ratio := math.Pow(float64(total)/float64(min), 1/float64(points-1))
		for i := 0; i < points; i++ {
			sizes = append(sizes, int(math.Round(float64(min)*math.Pow(ratio, float64(i)))))
		}
	} else {
		step := float64(total-min) / float64(points-1)
		for i := 0; i < points; i++ {
			sizes = append(sizes, int(math.Round(float64(min)+float64(i)*step)))
		}
	}
	out := make([]int, 0, len(sizes))
	last := 0
	for _, s := range sizes {
		if s <= last {
			s = last + 1
		}
		if s > total {
			s = total
		}
		if s != last {
			out = append(out, s)
			last = s
		}
	}
	out[len(out)-1] = total
	return out
}

// MacroF1 is the unweighted mean of the per-class F1 scores.
func MacroF1(yTrue, yPred []int) (float64, error) {
	cm, err := Confusion(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	rs := cm.Report()
	if len(rs) == 0 {
		return 0, nil
	}
	f1 := make([]float64, len(rs))
	for i, r := range rs {
		f1[i] = r.F1
	}
	return stat.Mean(f1, nil), nil
}

// LearningCurve fits one model per size on the first size rows of X and
// scores it on those rows and on the held-out set. Callers shuffle X first.
func LearningCurve(tr models.Trainer, p models.Params, X [][]float64, y []int, Xt [][]float64, yt []int, sizes []int, logger *zap.Logger) ([]CurvePoint, error) {
	if err := data.CheckXY("LearningCurve", X, y); err != nil {
		return nil, err
	}
	if err := data.CheckXY("LearningCurve", Xt, yt); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]CurvePoint, 0, len(sizes))
	for _, s := range sizes {
		if s < 1 || s > len(X) {
			return nil, fmt.Errorf("tamanho %d fora de [1,%d]", s, len(X))
		}
		subX, subY := X[:s], y[:s]
		m, err := tr.Fit(subX, subY, p)
		if err != nil {
			return nil, fmt.Errorf("tamanho %d: %w", s, err)
		}
		pTrain, pTest := m.Predict(subX), m.Predict(Xt)
		pt := CurvePoint{Size: s, TrainAcc: Accuracy(subY, pTrain), TestAcc: Accuracy(yt, pTest)}
		if pt.TrainF1, err = MacroF1(subY, pTrain); err != nil {
			return nil, err
		}
		if pt.TestF1, err = MacroF1(yt, pTest); err != nil {
			return nil, err
		}
		logger.Info("Ponto da curva",
			zap.String("model", m.Name()),
			zap.Int("size", s),
			zap.Float64("train_acc", pt.TrainAcc),
			zap.Float64("test_acc", pt.TestAcc),
		)
		out = append(out, pt)
	}
	return out, nil
}

func WriteCurveCSV(path string, pts []CurvePoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeCurve(f, pts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeCurve(out io.Writer, pts []CurvePoint) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"size", "train_acc", "test_acc", "train_f1", "test_f1"}); err != nil {
		return err
	}
	for _, p := range pts {
		rec := []string{
			strconv.Itoa(p.Size),
			strconv.FormatFloat(p.TrainAcc, 'f', 6, 64),
			strconv.FormatFloat(p.TestAcc, 'f', 6, 64),
			strconv.FormatFloat(p.TrainF1, 'f', 6, 64),
			strconv.FormatFloat(p.TestF1, 'f', 6, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
