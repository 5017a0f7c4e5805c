package data

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Format string

const (
	FormatIDX Format = "idx"
	FormatCSV Format = "csv"
)

const DefaultBaseURL = "https://storage.googleapis.com/cvdf-datasets/mnist/"

// Classic MNIST IDX files, train part first.
const (
	trainSetImg = "train-images-idx3-ubyte.gz"
	trainSetVal = "train-labels-idx1-ubyte.gz"
	inferSetImg = "t10k-images-idx3-ubyte.gz"
	inferSetVal = "t10k-labels-idx1-ubyte.gz"
)

// DefaultDigests are the SHA-256 sums of the published IDX archives.
var DefaultDigests = map[string]string{
	trainSetImg: "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609",
	trainSetVal: "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c",
	inferSetImg: "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6",
	inferSetVal: "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6",
}

// Loader fetches a dataset by identifier, reading from CacheDir first and
// falling back to BaseURL.
type Loader struct {
	BaseURL  string
	CacheDir string
	Format   Format
	Digests  map[string]string
	Limit    int
	Client   *http.Client
	Logger   *zap.Logger
}

func NewLoader(baseURL, cacheDir string, format Format) *Loader {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if format == "" {
		format = FormatIDX
	}
	digests := map[string]string{}
	if format == FormatIDX {
		for k, v := range DefaultDigests {
			digests[k] = v
		}
	}
	return &Loader{
		BaseURL:  baseURL,
		CacheDir: cacheDir,
		Format:   format,
		Digests:  digests,
		Client:   &http.Client{Timeout: 5 * time.Minute},
		Logger:   zap.NewNop(),
	}
}

// Load returns the dataset named id. Every failure is a *RetrievalError.
func (l *Loader) Load(ctx context.Context, id string) (*Dataset, error) {
	var (
		ds  *Dataset
		err error
	)
	switch l.Format {
	case FormatCSV:
		ds, err = l.loadCSV(ctx, id)
	case FormatIDX:
		ds, err = l.loadIDX(ctx, id)
	default:
		return nil, retrievalf(id, "formato desconhecido %q", l.Format)
	}
	if err != nil {
		var re *RetrievalError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, &RetrievalError{Source: id, Err: err}
	}
	if l.Limit > 0 {
		ds = ds.Head(l.Limit)
	}
	l.logger().Info("Dataset carregado",
		zap.String("id", id),
		zap.Int("linhas", ds.Len()),
		zap.Int("colunas", len(ds.Columns())),
	)
	return ds, nil
}

func (l *Loader) loadCSV(ctx context.Context, id string) (*Dataset, error) {
	name := id
	if !strings.HasSuffix(name, ".csv") && !strings.HasSuffix(name, ".csv.gz") {
		name += ".csv"
	}
	b, err := l.fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	r, err := maybeGunzip(name, b)
	if err != nil {
		return nil, retrievalf(name, "%v", err)
	}
	ds, err := DecodeCSV(r, strings.TrimSuffix(strings.TrimSuffix(id, ".gz"), ".csv"))
	if err != nil {
		return nil, retrievalf(name, "%v", err)
	}
	return ds, nil
}

func (l *Loader) loadIDX(ctx context.Context, id string) (*Dataset, error) {
	pairs := [][2]string{{trainSetImg, trainSetVal}, {inferSetImg, inferSetVal}}
	parts := make([]idxPart, 0, len(pairs))
	for _, p := range pairs {
		img, err := l.open(ctx, p[0])
		if err != nil {
			return nil, err
		}
		lab, err := l.open(ctx, p[1])
		if err != nil {
			return nil, err
		}
		part, err := decodeIDXPart(img, lab)
		if err != nil {
			return nil, retrievalf(p[0], "%v", err)
		}
		parts = append(parts, part)
	}
	ds, err := assembleIDX(id, parts...)
	if err != nil {
		return nil, retrievalf(id, "%v", err)
	}
	return ds, nil
}

func (l *Loader) open(ctx context.Context, name string) (io.Reader, error) {
	b, err := l.fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	r, err := maybeGunzip(name, b)
	if err != nil {
		return nil, retrievalf(name, "%v", err)
	}
	return r, nil
}

// fetch returns the raw bytes of a file, from cache when present.
func (l *Loader) fetch(ctx context.Context, name string) ([]byte, error) {
	if l.CacheDir != "" {
		path := filepath.Join(l.CacheDir, name)
		if b, err := os.ReadFile(path); err == nil {
			if err := l.verify(name, b); err != nil {
				return nil, err
			}
			l.logger().Debug("Usando cache", zap.String("path", path))
			return b, nil
		}
	}

	url := strings.TrimSuffix(l.BaseURL, "/") + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retrievalf(url, "%v", err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	l.logger().Info("Baixando arquivo", zap.String("url", url))
	resp, err := client.Do(req)
	if err != nil {
		return nil, retrievalf(url, "%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, retrievalf(url, "status HTTP %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retrievalf(url, "%v", err)
	}
	if err := l.verify(name, b); err != nil {
		return nil, err
	}
	if l.CacheDir != "" {
		if err := os.MkdirAll(l.CacheDir, 0o755); err == nil {
			if err := os.WriteFile(filepath.Join(l.CacheDir, name), b, 0o644); err != nil {
				l.logger().Warn("Falha ao gravar cache", zap.String("file", name), zap.Error(err))
			}
		}
	}
	return b, nil
}

func (l *Loader) verify(name string, b []byte) error {
	want, ok := l.Digests[name]
	if !ok || want == "" {
		return nil
	}
	sum := sha256.Sum256(b)
	if got := hex.EncodeToString(sum[:]); got != want {
		return retrievalf(name, "sha256 %s, esperado %s", got, want)
	}
	return nil
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func maybeGunzip(name string, b []byte) (io.Reader, error) {
	if !strings.HasSuffix(name, ".gz") {
		return bytes.NewReader(b), nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("gzip %s: %w", name, err)
	}
	return zr, nil
}
