package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"manga-server/internal/models"
)

// ErrImageGenerationFailed - ошибка при генерации изображения diffusion-сервером.
var ErrImageGenerationFailed = errors.New("image generation failed")

// ImageGenerator - интерфейс удаленного генератора изображений панелей.
type ImageGenerator interface {
	// GeneratePanel генерирует изображение по промпту и возвращает его байты (PNG/JPEG).
	GeneratePanel(ctx context.Context, req ImageRequest) ([]byte, error)
}

// ImageRequest - запрос к diffusion-серверу.
type ImageRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Model          string `json:"model"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

// DiffusionClient - HTTP-клиент локального diffusion-сервера (SD-совместимый
// endpoint /generate, возвращающий изображение в теле ответа).
type DiffusionClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDiffusionClient создает клиент diffusion-сервера.
func NewDiffusionClient(baseURL string, timeout time.Duration, logger *zap.Logger) *DiffusionClient {
	return &DiffusionClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GeneratePanel вызывает diffusion-сервер. Сетевые ошибки и 5xx помечаются
// как transient, пустой ответ - как invalid payload.
func (c *DiffusionClient) GeneratePanel(ctx context.Context, imgReq ImageRequest) ([]byte, error) {
	log := c.logger.With(zap.String("api_url", c.baseURL), zap.String("model", imgReq.Model))

	reqBodyBytes, err := json.Marshal(imgReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	endpointURL := c.baseURL + "/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/*")

	log.Debug("Sending request to diffusion server")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("Diffusion server request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w: %v", models.ErrTransientRemote, ErrImageGenerationFailed, err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Warn("Diffusion server returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
		)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %w: status %d", models.ErrTransientRemote, ErrImageGenerationFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w: status %d: %s",
			models.ErrInvalidRemotePayload, ErrImageGenerationFailed, resp.StatusCode, string(bodyBytes))
	}

	if readErr != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", models.ErrTransientRemote, readErr)
	}
	if len(bodyBytes) == 0 {
		return nil, fmt.Errorf("%w: %w: server returned empty image data",
			models.ErrInvalidRemotePayload, ErrImageGenerationFailed)
	}

	log.Debug("Image data received from diffusion server", zap.Int("size_bytes", len(bodyBytes)))
	return bodyBytes, nil
}
