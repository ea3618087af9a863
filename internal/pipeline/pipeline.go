package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"manga-server/internal/models"
)

var pipelineDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "manga_pipeline_duration_seconds",
		Help:    "End-to-end manga generation duration.",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	},
)

// Analyzer извлекает жанр, тональность и ключевые слова из промпта.
type Analyzer interface {
	Analyze(prompt string) models.AnalysisResult
}

// StoryGenerator порождает историю. Ошибок не возвращает: сбои удаленного
// пути закрываются локальным синтезом внутри оркестратора.
type StoryGenerator interface {
	GenerateStory(ctx context.Context, req models.GenerationRequest, analysis models.AnalysisResult) models.Story
}

// PanelGenerator рендерит панель для каждой сцены истории.
type PanelGenerator interface {
	GeneratePanels(ctx context.Context, story models.Story, styleTag string, genre models.Genre) ([]models.Panel, error)
}

// Controller последовательно проводит запрос через все стадии конвейера:
// нормализация, анализ, история, панели. Наружу выходят только ошибки
// ресурсов (диск), остальные сбои поглощаются fallback-путями стадий.
type Controller struct {
	analyzer Analyzer
	story    StoryGenerator
	panels   PanelGenerator
	logger   *zap.Logger
}

// NewController создает контроллер конвейера.
func NewController(analyzer Analyzer, story StoryGenerator, panels PanelGenerator, logger *zap.Logger) *Controller {
	return &Controller{analyzer: analyzer, story: story, panels: panels, logger: logger}
}

// Generate выполняет полный цикл генерации манги по запросу.
func (c *Controller) Generate(ctx context.Context, req models.GenerationRequest) (models.MangaResult, models.Story, error) {
	startTime := time.Now()
	req.Normalize()

	log := c.logger.With(
		zap.String("mode", string(req.Mode)),
		zap.Int("characters", len(req.Characters)),
	)
	log.Info("Manga generation started")

	analysis := c.analyzer.Analyze(req.Prompt)
	log.Debug("Prompt analyzed",
		zap.String("genre", string(analysis.Genre)),
		zap.Float64("sentiment", analysis.Sentiment),
		zap.Strings("keywords", analysis.Keywords),
	)

	story := c.story.GenerateStory(ctx, req, analysis)

	// Жанр из анализа уточняет промпт рендера панелей
	panels, err := c.panels.GeneratePanels(ctx, story, "manga", analysis.Genre)
	if err != nil {
		log.Error("Panel generation failed", zap.Error(err))
		return models.MangaResult{}, models.Story{}, err
	}

	pipelineDuration.Observe(time.Since(startTime).Seconds())
	log.Info("Manga generation finished",
		zap.String("title", story.Title),
		zap.Int("panels", len(panels)),
		zap.Duration("duration", time.Since(startTime)),
	)

	return models.MangaResult{Title: story.Title, Panels: panels}, story, nil
}

// GenerateStoryOnly выполняет конвейер до стадии истории включительно.
func (c *Controller) GenerateStoryOnly(ctx context.Context, req models.GenerationRequest) (models.Story, models.AnalysisResult) {
	req.Normalize()
	analysis := c.analyzer.Analyze(req.Prompt)
	story := c.story.GenerateStory(ctx, req, analysis)
	return story, analysis
}
