package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию сервиса генерации манги.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	// Директория для сгенерированных файлов (панели, PDF, CBZ)
	OutputsDir string `envconfig:"OUTPUTS_DIR" default:"outputs"`

	// Настройки AI для генерации историй (OpenAI-совместимый API или Ollama)
	AIClientType     string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL        string        `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AIModel          string        `envconfig:"AI_MODEL" default:"deepseek/deepseek-chat"`
	AITimeout        time.Duration `envconfig:"AI_TIMEOUT" default:"45s"`
	AIMaxAttempts    int           `envconfig:"AI_MAX_ATTEMPTS" default:"2"`
	AIBaseRetryDelay time.Duration `envconfig:"AI_BASE_RETRY_DELAY" default:"1s"`
	// Ключ API. Пустое значение отключает удаленную генерацию историй,
	// сервис продолжает работать только на локальном синтезаторе.
	AIAPIKey string `envconfig:"AI_API_KEY"`

	// Границы количества сцен. Взяты из документации продукта, не из контракта,
	// поэтому оставлены настраиваемыми.
	StoryMinScenes  int `envconfig:"STORY_MIN_SCENES" default:"10"`
	StoryMaxScenes  int `envconfig:"STORY_MAX_SCENES" default:"15"`
	ReadingSpeedWPM int `envconfig:"READING_SPEED_WPM" default:"200"`
	KeywordLimit    int `envconfig:"KEYWORD_LIMIT" default:"8"`

	// Настройки сервера генерации изображений (diffusion-сервер).
	// Пустой BaseURL отключает удаленную генерацию панелей.
	ImageServerBaseURL string        `envconfig:"IMAGE_SERVER_BASE_URL"`
	ImageServerTimeout time.Duration `envconfig:"IMAGE_SERVER_TIMEOUT" default:"60s"`
	ImageModelID       string        `envconfig:"IMAGE_MODEL_ID" default:"sd-manga-v1"`

	// Реестр весов модели: модель скачивается при первом использовании
	// и кэшируется в ModelCacheDir.
	ModelRegistryBaseURL string        `envconfig:"MODEL_REGISTRY_BASE_URL"`
	ModelCacheDir        string        `envconfig:"MODEL_CACHE_DIR" default:"models"`
	ModelFetchTimeout    time.Duration `envconfig:"MODEL_FETCH_TIMEOUT" default:"300s"`

	// Лимит запросов генерации на клиента в минуту (0 отключает лимитер)
	GenerateLimitPerMinute uint `envconfig:"GENERATE_LIMIT_PER_MINUTE" default:"10"`

	// Пул воркеров генерации панелей
	PanelWorkers      int     `envconfig:"PANEL_WORKERS" default:"4"`
	PanelRateLimitRPS float64 `envconfig:"PANEL_RATE_LIMIT_RPS" default:"2"`
	PanelWidth        int     `envconfig:"PANEL_WIDTH" default:"800"`
	PanelHeight       int     `envconfig:"PANEL_HEIGHT" default:"600"`
}

// Load загружает конфигурацию из переменных окружения и .env файла.
func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку, если файла нет)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Логируем загруженную конфигурацию (кроме ключа API)
	log.Printf("Конфигурация загружена:")
	log.Printf("  App Env: %s", cfg.AppEnv)
	log.Printf("  HTTP Port: %s", cfg.HTTPPort)
	log.Printf("  Outputs Dir: %s", cfg.OutputsDir)
	log.Printf("  AI Client Type: %s", cfg.AIClientType)
	log.Printf("  AI Base URL: %s", cfg.AIBaseURL)
	log.Printf("  AI Model: %s", cfg.AIModel)
	log.Printf("  AI Timeout: %v", cfg.AITimeout)
	log.Printf("  AI Max Attempts: %d", cfg.AIMaxAttempts)
	log.Printf("  AI API Key: %s", maskSecret(cfg.AIAPIKey))
	log.Printf("  Scene Bounds: [%d, %d]", cfg.StoryMinScenes, cfg.StoryMaxScenes)
	log.Printf("  Image Server: %s (model %s)", orUnset(cfg.ImageServerBaseURL), cfg.ImageModelID)
	log.Printf("  Model Registry: %s (cache %s)", orUnset(cfg.ModelRegistryBaseURL), cfg.ModelCacheDir)
	log.Printf("  Panel Workers: %d", cfg.PanelWorkers)

	return &cfg, nil
}

// RemoteStoryEnabled сообщает, настроен ли удаленный генератор историй.
func (c *Config) RemoteStoryEnabled() bool {
	if c.AIClientType == "ollama" {
		// Ollama обычно локальная и не требует ключа
		return c.AIBaseURL != ""
	}
	return c.AIAPIKey != ""
}

// RemotePanelEnabled сообщает, настроен ли удаленный генератор панелей.
func (c *Config) RemotePanelEnabled() bool {
	return c.ImageServerBaseURL != ""
}

func (c *Config) validate() error {
	if c.StoryMinScenes < 1 || c.StoryMaxScenes < c.StoryMinScenes {
		return fmt.Errorf("некорректные границы сцен: min=%d, max=%d", c.StoryMinScenes, c.StoryMaxScenes)
	}
	if c.AIMaxAttempts < 1 {
		return fmt.Errorf("AI_MAX_ATTEMPTS должен быть >= 1, получено %d", c.AIMaxAttempts)
	}
	if c.PanelWorkers < 1 {
		return fmt.Errorf("PANEL_WORKERS должен быть >= 1, получено %d", c.PanelWorkers)
	}
	if c.ReadingSpeedWPM <= 0 {
		return fmt.Errorf("READING_SPEED_WPM должен быть > 0, получено %d", c.ReadingSpeedWPM)
	}
	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return "[НЕ ЗАДАН]"
	}
	return "[ЗАГРУЖЕН]"
}

func orUnset(s string) string {
	if s == "" {
		return "[не настроен]"
	}
	return s
}
