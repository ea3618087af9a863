package story

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"manga-server/internal/models"
)

var (
	storiesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manga_stories_generated_total",
			Help: "Total number of stories generated, partitioned by source path.",
		},
		[]string{"source"},
	)
	storyFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manga_story_fallbacks_total",
			Help: "Total number of remote story failures that fell back to local synthesis, by reason.",
		},
		[]string{"reason"},
	)
)

// RemoteStoryGenerator - удаленный путь генерации истории.
type RemoteStoryGenerator interface {
	Generate(ctx context.Context, req models.GenerationRequest, analysis models.AnalysisResult) (models.Story, error)
}

// Options - настройки оркестратора историй.
type Options struct {
	Timeout         time.Duration
	MaxAttempts     int // Общее число попыток удаленного пути (1 = без повторов)
	BaseRetryDelay  time.Duration
	MinScenes       int
	MaxScenes       int
	ReadingSpeedWPM int
}

// Orchestrator выбирает между удаленным и локальным путем генерации.
// Вызывающему всегда возвращается валидная история: любая ошибка удаленного
// пути поглощается fallback-ом на локальный синтезатор.
type Orchestrator struct {
	remote RemoteStoryGenerator // nil, если удаленный путь не настроен
	local  *LocalSynthesizer
	logger *zap.Logger
	opts   Options
}

// NewOrchestrator создает оркестратор. remote может быть nil - тогда работает
// только локальный путь (ситуация ConfigurationError, логируется один раз).
func NewOrchestrator(remote RemoteStoryGenerator, local *LocalSynthesizer, logger *zap.Logger, opts Options) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if remote == nil {
		logger.Warn("Remote story generation is not configured, running local-only",
			zap.Error(models.ErrConfiguration))
	}
	return &Orchestrator{remote: remote, local: local, logger: logger, opts: opts}
}

// GenerateStory возвращает историю из 10-15 сцен. Не возвращает ошибок:
// при любом сбое удаленного пути используется локальный синтезатор.
func (o *Orchestrator) GenerateStory(ctx context.Context, req models.GenerationRequest, analysis models.AnalysisResult) models.Story {
	if o.remote != nil {
		story, err := o.tryRemote(ctx, req, analysis)
		if err == nil {
			o.finalize(&story, analysis)
			storiesGenerated.With(prometheus.Labels{"source": "remote"}).Inc()
			o.logger.Info("Story generated by remote path",
				zap.Int("scenes", len(story.Scenes)),
				zap.String("title", story.Title),
			)
			return story
		}
		o.logger.Warn("Remote story path failed, falling back to local synthesizer", zap.Error(err))
	}

	story := o.local.Synthesize(req, analysis)
	o.finalize(&story, analysis)
	storiesGenerated.With(prometheus.Labels{"source": "local"}).Inc()
	o.logger.Info("Story generated by local path",
		zap.Int("scenes", len(story.Scenes)),
		zap.String("title", story.Title),
	)
	return story
}

// tryRemote выполняет удаленную генерацию с ограниченным числом попыток.
// Повторяются только transient-ошибки; некорректный ответ отбрасывается сразу.
func (o *Orchestrator) tryRemote(parent context.Context, req models.GenerationRequest, analysis models.AnalysisResult) (models.Story, error) {
	var lastErr error

	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(parent, o.opts.Timeout)
		story, err := o.remote.Generate(ctx, req, analysis)
		cancel()

		if err == nil {
			if verr := o.validate(story, req); verr != nil {
				storyFallbacks.With(prometheus.Labels{"reason": "validation"}).Inc()
				o.logger.Warn("Remote story rejected by validation",
					zap.Int("attempt", attempt), zap.Error(verr))
				return models.Story{}, verr
			}
			return story, nil
		}

		lastErr = err
		if !errIsRetryable(err) {
			storyFallbacks.With(prometheus.Labels{"reason": "invalid_payload"}).Inc()
			return models.Story{}, err
		}

		o.logger.Warn("Remote story attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.opts.MaxAttempts),
			zap.Error(err),
		)
		if attempt == o.opts.MaxAttempts {
			break
		}

		// Экспоненциальная задержка с джиттером, как в воркере генерации
		delay := float64(o.opts.BaseRetryDelay) * math.Pow(2, float64(attempt-1))
		jitter := delay * 0.1
		delay += jitter * (rand.Float64()*2 - 1)
		waitDuration := time.Duration(delay)
		if waitDuration < o.opts.BaseRetryDelay {
			waitDuration = o.opts.BaseRetryDelay
		}

		select {
		case <-parent.Done():
			return models.Story{}, fmt.Errorf("%w: %v", models.ErrTransientRemote, parent.Err())
		case <-time.After(waitDuration):
		}
	}

	storyFallbacks.With(prometheus.Labels{"reason": "transient"}).Inc()
	return models.Story{}, lastErr
}

// validate проверяет форму удаленного результата: количество сцен в границах,
// индексы без пропусков, каждый говорящий - из списка персонажей запроса.
func (o *Orchestrator) validate(story models.Story, req models.GenerationRequest) error {
	if len(story.Scenes) < o.opts.MinScenes || len(story.Scenes) > o.opts.MaxScenes {
		return fmt.Errorf("%w: scene count %d outside [%d, %d]",
			models.ErrInvalidRemotePayload, len(story.Scenes), o.opts.MinScenes, o.opts.MaxScenes)
	}

	known := make(map[string]struct{}, len(req.Characters))
	for _, name := range req.Characters {
		known[name] = struct{}{}
	}

	for i, scene := range story.Scenes {
		if scene.Index != i {
			return fmt.Errorf("%w: scene index %d at position %d", models.ErrInvalidRemotePayload, scene.Index, i)
		}
		for _, line := range scene.Dialogue {
			if _, ok := known[line.Character]; !ok {
				return fmt.Errorf("%w: dialogue character %q is not in the request cast",
					models.ErrInvalidRemotePayload, line.Character)
			}
		}
	}
	return nil
}

// finalize вычисляет метаданные истории: темы из анализа, оценку времени
// чтения и количество сцен.
func (o *Orchestrator) finalize(story *models.Story, analysis models.AnalysisResult) {
	words := story.WordCount()
	story.Metadata = models.StoryMetadata{
		Themes:                      analysis.Keywords,
		EstimatedReadingTimeSeconds: words * 60 / o.opts.ReadingSpeedWPM,
		SceneCount:                  len(story.Scenes),
	}
}
