package panel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"manga-server/internal/models"
)

var modelDownloads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "manga_model_downloads_total",
		Help: "Total number of model weight downloads, by status.",
	},
	[]string{"model", "status"},
)

// ModelFetcher скачивает веса модели по идентификатору.
type ModelFetcher interface {
	Fetch(ctx context.Context, modelID string, dst io.Writer) error
}

// HTTPModelFetcher скачивает веса из реестра моделей по HTTP.
type HTTPModelFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPModelFetcher создает HTTP-фетчер весов модели.
func NewHTTPModelFetcher(baseURL string, timeout time.Duration) *HTTPModelFetcher {
	return &HTTPModelFetcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPModelFetcher) Fetch(ctx context.Context, modelID string, dst io.Writer) error {
	url := fmt.Sprintf("%s/models/%s", f.baseURL, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: model download failed: %v", models.ErrResource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: model registry returned status %d", models.ErrResource, resp.StatusCode)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("%w: model download interrupted: %v", models.ErrResource, err)
	}
	return nil
}

// ModelCache управляет жизненным циклом локально кэшированных весов модели.
//
// Жизненный цикл: первый Ensure для идентификатора скачивает веса во
// временный файл и атомарно переименовывает его в кэш; последующие Ensure
// возвращают готовый путь. Evict удаляет веса; иначе кэш живет до конца
// процесса. Конкурентные первые обращения к одному идентификатору
// сериализуются через singleflight: скачивание выполняется ровно один раз,
// запросы к разным моделям друг друга не блокируют.
type ModelCache struct {
	dir     string
	fetcher ModelFetcher
	logger  *zap.Logger
	group   singleflight.Group
}

// NewModelCache создает кэш моделей в указанной директории.
func NewModelCache(dir string, fetcher ModelFetcher, logger *zap.Logger) *ModelCache {
	return &ModelCache{dir: dir, fetcher: fetcher, logger: logger}
}

// Ensure гарантирует, что веса модели находятся на диске, и возвращает путь к ним.
func (c *ModelCache) Ensure(ctx context.Context, modelID string) (string, error) {
	path := c.pathFor(modelID)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	result, err, _ := c.group.Do(modelID, func() (interface{}, error) {
		// Повторная проверка: пока запрос ждал в очереди singleflight,
		// предыдущий вызов мог уже скачать веса.
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return path, c.download(ctx, modelID, path)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Evict удаляет веса модели из кэша.
func (c *ModelCache) Evict(modelID string) error {
	path := c.pathFor(modelID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to evict model %s: %v", models.ErrResource, modelID, err)
	}
	c.logger.Info("Model evicted from cache", zap.String("model", modelID))
	return nil
}

func (c *ModelCache) download(ctx context.Context, modelID, path string) error {
	log := c.logger.With(zap.String("model", modelID))
	log.Info("Downloading model weights...")
	startTime := time.Now()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		modelDownloads.With(prometheus.Labels{"model": modelID, "status": "error"}).Inc()
		return fmt.Errorf("%w: failed to create model cache dir: %v", models.ErrResource, err)
	}

	tmp, err := os.CreateTemp(c.dir, modelID+".download-*")
	if err != nil {
		modelDownloads.With(prometheus.Labels{"model": modelID, "status": "error"}).Inc()
		return fmt.Errorf("%w: failed to create temp file: %v", models.ErrResource, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := c.fetcher.Fetch(ctx, modelID, tmp); err != nil {
		tmp.Close()
		modelDownloads.With(prometheus.Labels{"model": modelID, "status": "error"}).Inc()
		return err
	}
	if err := tmp.Close(); err != nil {
		modelDownloads.With(prometheus.Labels{"model": modelID, "status": "error"}).Inc()
		return fmt.Errorf("%w: failed to finalize model file: %v", models.ErrResource, err)
	}

	// Атомарное появление файла в кэше: либо модель целиком, либо ничего
	if err := os.Rename(tmpName, path); err != nil {
		modelDownloads.With(prometheus.Labels{"model": modelID, "status": "error"}).Inc()
		return fmt.Errorf("%w: failed to move model into cache: %v", models.ErrResource, err)
	}

	modelDownloads.With(prometheus.Labels{"model": modelID, "status": "success"}).Inc()
	log.Info("Model weights cached", zap.Duration("duration", time.Since(startTime)))
	return nil
}

func (c *ModelCache) pathFor(modelID string) string {
	return filepath.Join(c.dir, modelID+".safetensors")
}
