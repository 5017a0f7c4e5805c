package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mnistflow/internal/data"
	"mnistflow/internal/explore"
	"mnistflow/internal/features"
	"mnistflow/internal/models"
	"mnistflow/internal/pipeline"
	"mnistflow/pkg/utils"
)

const maxBatch = 1000

func main() {
	logger := utils.Logger()
	defer logger.Sync()

	modelPath := os.Getenv("MODEL_PATH")
	if modelPath == "" {
		modelPath = filepath.Join("models", "rf_model.gob")
	}
	reportPath := os.Getenv("REPORT_PATH")
	if reportPath == "" {
		reportPath = filepath.Join("reports", "report.json")
	}
	b, err := models.Load(modelPath)
	if err != nil {
		logger.Fatal("Falha ao carregar modelo", zap.String("path", modelPath), zap.Error(err))
	}
	if b.Scaler != nil && len(b.Scaler.Columns) != data.NumFeatures {
		logger.Fatal("Escala incompatível com o modelo", zap.Int("colunas", len(b.Scaler.Columns)))
	}
	logger.Info("Modelo carregado",
		zap.String("model", b.Model.Name()),
		zap.String("path", modelPath),
		zap.Bool("scaler", b.Scaler != nil),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := newRouter(b, reportPath, logger).Run(":" + port); err != nil {
		logger.Fatal("Servidor encerrado", zap.Error(err))
	}
}

type server struct {
	model      models.Classifier
	scaler     *features.MinMaxScaler
	reportPath string
	log        *zap.Logger
}

func newRouter(b models.Bundle, reportPath string, logger *zap.Logger) *gin.Engine {
	s := &server{model: b.Model, scaler: b.Scaler, reportPath: reportPath, log: logger}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/metrics", s.metrics)

	api := r.Group("/")
	api.Use(apiKeyMiddleware)
	api.POST("/predict", s.predict)
	api.POST("/batch", s.batch)
	return r
}

func apiKeyMiddleware(c *gin.Context) {
	key := os.Getenv("API_KEY")
	if key == "" {
		c.Next()
		return
	}
	if c.GetHeader("X-API-Key") != key {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// Pixels are raw 0-255 intensities, mapped with the min/max fitted at
// training time, unless Scaled is set, in which case they are passed to the
// model as given.
type predictReq struct {
	Pixels []float64 `json:"pixels" binding:"required"`
	Scaled bool      `json:"scaled"`
	ASCII  bool      `json:"ascii"`
}

type prediction struct {
	Digit int                `json:"digit"`
	Proba map[string]float64 `json:"proba"`
	ASCII string             `json:"ascii,omitempty"`
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model": s.model.Name()})
}

func (s *server) metrics(c *gin.Context) {
	rep, err := pipeline.LoadReport(s.reportPath)
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "relatório ainda não gerado"})
		return
	}
	if err != nil {
		s.log.Error("Falha ao ler relatório", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "relatório inválido"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *server) predict(c *gin.Context) {
	var req predictReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	row, err := s.vectorize(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out := s.classify([][]float64{row})[0]
	if req.ASCII {
		out.ASCII, _ = explore.ASCII(row)
	}
	c.JSON(http.StatusOK, gin.H{"model": s.model.Name(), "prediction": out})
}

func (s *server) batch(c *gin.Context) {
	var items []predictReq
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(items) == 0 || len(items) > maxBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("lote deve ter entre 1 e %d itens", maxBatch)})
		return
	}
	X := make([][]float64, len(items))
	for i, it := range items {
		row, err := s.vectorize(it)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("item %d: %v", i, err)})
			return
		}
		X[i] = row
	}
	c.JSON(http.StatusOK, gin.H{"model": s.model.Name(), "predictions": s.classify(X)})
}

func (s *server) classify(X [][]float64) []prediction {
	labels := s.model.Classes()
	pred := s.model.Predict(X)
	proba := s.model.PredictProba(X)
	out := make([]prediction, len(X))
	for i := range X {
		p := prediction{Digit: pred[i], Proba: make(map[string]float64, len(labels))}
		for k, l := range labels {
			p.Proba[strconv.Itoa(l)] = proba[i][k]
		}
		out[i] = p
	}
	return out
}

// vectorize checks the pixel count and range and maps raw intensities into
// [0,1]. Bundles saved without a scaler fall back to dividing by 255.
func (s *server) vectorize(req predictReq) ([]float64, error) {
	if len(req.Pixels) != data.NumFeatures {
		return nil, &data.ShapeMismatchError{Op: "predict", What: "pixels", Want: data.NumFeatures, Got: len(req.Pixels)}
	}
	hi := 255.0
	if req.Scaled {
		hi = 1
	}
	for j, v := range req.Pixels {
		if v < 0 || v > hi {
			return nil, fmt.Errorf("pixel %d fora da faixa [0,%g]: %g", j, hi, v)
		}
	}
	if req.Scaled {
		return append([]float64(nil), req.Pixels...), nil
	}
	if s.scaler != nil {
		return s.scaler.ScaleRow(req.Pixels)
	}
	row := make([]float64, len(req.Pixels))
	for j, v := range req.Pixels {
		row[j] = v / hi
	}
	return row, nil
}
