package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"manga-server/internal/api"
	"manga-server/internal/config"
	"manga-server/internal/export"
	"manga-server/internal/logger"
	"manga-server/internal/nlp"
	"manga-server/internal/panel"
	"manga-server/internal/pipeline"
	"manga-server/internal/story"
)

func main() {
	// --- Загрузка конфигурации ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// --- Инициализация логгера ---
	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: "json",
	})
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)
	zapLogger.Info("Logger initialized", zap.String("level", cfg.LogLevel))

	// --- Путь генерации историй ---
	localSynth := story.NewLocalSynthesizer(zapLogger, cfg.StoryMinScenes, cfg.StoryMaxScenes)

	var remoteStory story.RemoteStoryGenerator
	if cfg.RemoteStoryEnabled() {
		aiClient, err := story.NewAIClient(cfg, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to initialize AI client", zap.Error(err))
		}
		remoteStory = story.NewRemoteGenerator(aiClient, zapLogger, cfg.StoryMinScenes, cfg.StoryMaxScenes)
	}

	storyOrch := story.NewOrchestrator(remoteStory, localSynth, zapLogger, story.Options{
		Timeout:         cfg.AITimeout,
		MaxAttempts:     cfg.AIMaxAttempts,
		BaseRetryDelay:  cfg.AIBaseRetryDelay,
		MinScenes:       cfg.StoryMinScenes,
		MaxScenes:       cfg.StoryMaxScenes,
		ReadingSpeedWPM: cfg.ReadingSpeedWPM,
	})

	// --- Путь генерации панелей ---
	renderer := panel.NewRenderer(cfg.OutputsDir, cfg.PanelWidth, cfg.PanelHeight, zapLogger)

	var imageGen panel.ImageGenerator
	var modelCache *panel.ModelCache
	if cfg.RemotePanelEnabled() {
		imageGen = panel.NewDiffusionClient(cfg.ImageServerBaseURL, cfg.ImageServerTimeout, zapLogger)
		if cfg.ModelRegistryBaseURL != "" {
			fetcher := panel.NewHTTPModelFetcher(cfg.ModelRegistryBaseURL, cfg.ModelFetchTimeout)
			modelCache = panel.NewModelCache(cfg.ModelCacheDir, fetcher, zapLogger)
		}
	}

	panelOrch := panel.NewOrchestrator(imageGen, renderer, modelCache, zapLogger, panel.Options{
		Workers:      cfg.PanelWorkers,
		MaxAttempts:  cfg.AIMaxAttempts,
		RateLimitRPS: cfg.PanelRateLimitRPS,
		ModelID:      cfg.ImageModelID,
		Width:        cfg.PanelWidth,
		Height:       cfg.PanelHeight,
		OutputsDir:   cfg.OutputsDir,
	})

	// --- Конвейер и HTTP API ---
	analyzer := nlp.NewAnalyzer(zapLogger, cfg.KeywordLimit)
	controller := pipeline.NewController(analyzer, storyOrch, panelOrch, zapLogger)
	exporter := export.NewExporter(cfg.OutputsDir, zapLogger)

	handler := api.NewHandler(controller, panelOrch, exporter, zapLogger)
	router := api.NewRouter(handler, zapLogger, api.RouterOptions{
		AppEnv:                 cfg.AppEnv,
		OutputsDir:             cfg.OutputsDir,
		GenerateLimitPerMinute: cfg.GenerateLimitPerMinute,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	// --- Запуск сервера ---
	go func() {
		zapLogger.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Ожидание сигнала завершения ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Graceful shutdown failed", zap.Error(err))
	}
	zapLogger.Info("Server stopped")
}
