package panel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"manga-server/internal/models"
)

var (
	panelsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manga_panels_generated_total",
			Help: "Total number of panels generated, partitioned by source path.",
		},
		[]string{"source"},
	)
	panelFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "manga_panel_fallbacks_total",
			Help: "Total number of scenes where remote rendering failed and the local renderer took over.",
		},
	)
	panelDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "manga_panel_render_duration_seconds",
			Help:    "Panel render duration from scene dispatch to saved file.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Options - настройки оркестратора панелей.
type Options struct {
	Workers      int
	MaxAttempts  int // Общее число попыток удаленного рендера на сцену
	RateLimitRPS float64
	ModelID      string
	Width        int
	Height       int
	OutputsDir   string
}

// Orchestrator превращает сцены истории в панели. Удаленный рендер идет через
// ограниченный пул воркеров; каждая сцена изолирована, сбой одной не трогает
// остальные и закрывается локальным рендером. Наружу уходит только ошибка
// локального рендера (диск).
type Orchestrator struct {
	remote      ImageGenerator // nil, если удаленный рендер не настроен
	local       *Renderer
	modelCache  *ModelCache // nil, если реестр моделей не настроен
	logger      *zap.Logger
	limiter     *rate.Limiter
	renderCache *cache.Cache
	opts        Options
}

// NewOrchestrator создает оркестратор панелей. remote и modelCache могут быть
// nil - тогда все панели рисует локальный рендерер.
func NewOrchestrator(remote ImageGenerator, local *Renderer, modelCache *ModelCache, logger *zap.Logger, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), opts.Workers)
	}
	if remote == nil {
		logger.Warn("Remote panel rendering is not configured, running local-only",
			zap.Error(models.ErrConfiguration))
	}

	return &Orchestrator{
		remote:      remote,
		local:       local,
		modelCache:  modelCache,
		logger:      logger,
		limiter:     limiter,
		renderCache: cache.New(10*time.Minute, 15*time.Minute),
		opts:        opts,
	}
}

// GeneratePanels рендерит панель для каждой сцены истории. Результат всегда
// упорядочен по индексу сцены и содержит ровно len(story.Scenes) панелей.
func (o *Orchestrator) GeneratePanels(ctx context.Context, story models.Story, styleTag string, genre models.Genre) ([]models.Panel, error) {
	panels := make([]models.Panel, len(story.Scenes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	for _, scene := range story.Scenes {
		g.Go(func() error {
			startTime := time.Now()
			p, err := o.renderScene(gctx, scene, speakersOf(scene), styleTag, genre)
			if err != nil {
				return err
			}
			panelDuration.Observe(time.Since(startTime).Seconds())
			panels[scene.Index] = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.logger.Info("All panels generated",
		zap.Int("total", len(panels)),
		zap.Int("remote", countBySource(panels, models.PanelSourceRemote)),
		zap.Int("local", countBySource(panels, models.PanelSourceLocal)),
	)
	return panels, nil
}

// RenderScene рендерит одну сцену вне контекста истории: тот же удаленный
// путь с локальным fallback-ом. Если список персонажей пуст, берутся
// говорящие из реплик сцены.
func (o *Orchestrator) RenderScene(ctx context.Context, scene models.Scene, characters []string, styleTag string, genre models.Genre) (models.Panel, error) {
	if len(characters) == 0 {
		characters = speakersOf(scene)
	}
	return o.renderScene(ctx, scene, characters, styleTag, genre)
}

// renderScene рендерит одну сцену: сначала удаленный путь с ограниченными
// повторами, при любом его сбое - локальный рендерер.
func (o *Orchestrator) renderScene(ctx context.Context, scene models.Scene, characters []string, styleTag string, genre models.Genre) (models.Panel, error) {
	if o.remote != nil {
		p, err := o.tryRemote(ctx, scene, characters, styleTag, genre)
		if err == nil {
			panelsGenerated.With(prometheus.Labels{"source": "remote"}).Inc()
			return p, nil
		}
		panelFallbacks.Inc()
		o.logger.Warn("Remote panel render failed, falling back to local renderer",
			zap.Int("scene_index", scene.Index),
			zap.Error(err),
		)
	}

	path, err := o.local.Render(scene, styleTag)
	if err != nil {
		return models.Panel{}, fmt.Errorf("scene %d: %w", scene.Index, err)
	}
	panelsGenerated.With(prometheus.Labels{"source": "local"}).Inc()
	return models.Panel{
		SceneIndex: scene.Index,
		ImagePath:  path,
		Dialogue:   scene.Dialogue,
		Source:     models.PanelSourceLocal,
	}, nil
}

// tryRemote выполняет удаленный рендер с повторами только для transient-ошибок.
func (o *Orchestrator) tryRemote(ctx context.Context, scene models.Scene, characters []string, styleTag string, genre models.Genre) (models.Panel, error) {
	prompt := buildPanelPrompt(scene, characters, styleTag, genre)

	// Повторный запрос той же сцены в рамках процесса отдаем из кэша
	cacheKey := promptCacheKey(prompt, styleTag)
	if cached, found := o.renderCache.Get(cacheKey); found {
		path := cached.(string)
		if _, err := os.Stat(path); err == nil {
			o.logger.Debug("Panel served from render cache",
				zap.Int("scene_index", scene.Index))
			return models.Panel{
				SceneIndex: scene.Index,
				ImagePath:  path,
				Dialogue:   scene.Dialogue,
				Source:     models.PanelSourceRemote,
			}, nil
		}
		o.renderCache.Delete(cacheKey)
	}

	// Веса модели подтягиваются лениво при первом обращении
	if o.modelCache != nil {
		if _, err := o.modelCache.Ensure(ctx, o.opts.ModelID); err != nil {
			return models.Panel{}, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return models.Panel{}, fmt.Errorf("%w: %v", models.ErrTransientRemote, err)
			}
		}

		data, err := o.remote.GeneratePanel(ctx, ImageRequest{
			Prompt:         prompt,
			NegativePrompt: "blurry, low quality, text artifacts",
			Model:          o.opts.ModelID,
			Width:          o.opts.Width,
			Height:         o.opts.Height,
		})
		if err == nil {
			path, werr := o.savePanel(scene.Index, data)
			if werr != nil {
				return models.Panel{}, werr
			}
			o.renderCache.SetDefault(cacheKey, path)
			return models.Panel{
				SceneIndex: scene.Index,
				ImagePath:  path,
				Dialogue:   scene.Dialogue,
				Source:     models.PanelSourceRemote,
				Attempt:    attempt,
			}, nil
		}

		lastErr = err
		if !errIsRetryable(err) {
			return models.Panel{}, err
		}
		o.logger.Warn("Remote panel attempt failed",
			zap.Int("scene_index", scene.Index),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.opts.MaxAttempts),
			zap.Error(err),
		)
	}
	return models.Panel{}, lastErr
}

// savePanel записывает байты изображения в директорию результатов.
func (o *Orchestrator) savePanel(sceneIndex int, data []byte) (string, error) {
	if err := os.MkdirAll(o.opts.OutputsDir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create outputs dir: %v", models.ErrResource, err)
	}
	fileName := fmt.Sprintf("panel_%03d_%s.png", sceneIndex, uuid.NewString()[:8])
	path := filepath.Join(o.opts.OutputsDir, fileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("%w: failed to save panel image: %v", models.ErrResource, err)
	}
	return path, nil
}

// buildPanelPrompt собирает промпт diffusion-модели: описание сцены,
// говорящие персонажи, тег стиля и жанр из анализа.
func buildPanelPrompt(scene models.Scene, characters []string, styleTag string, genre models.Genre) string {
	var b strings.Builder
	fmt.Fprintf(&b, "manga panel, %s style, %s genre, black and white ink: %s", styleTag, genre, scene.Description)
	if len(characters) > 0 {
		fmt.Fprintf(&b, ", featuring %s", strings.Join(characters, ", "))
	}
	if scene.EmotionalBeat == models.BeatClimax {
		b.WriteString(", dynamic action, speed lines")
	}
	return b.String()
}

// speakersOf возвращает говорящих персонажей сцены без дубликатов,
// в порядке первого появления.
func speakersOf(scene models.Scene) []string {
	seen := make(map[string]struct{}, len(scene.Dialogue))
	speakers := make([]string, 0, len(scene.Dialogue))
	for _, line := range scene.Dialogue {
		if _, ok := seen[line.Character]; ok {
			continue
		}
		seen[line.Character] = struct{}{}
		speakers = append(speakers, line.Character)
	}
	return speakers
}

func promptCacheKey(prompt, styleTag string) string {
	sum := sha256.Sum256([]byte(prompt + "\x00" + styleTag))
	return hex.EncodeToString(sum[:16])
}

func countBySource(panels []models.Panel, source models.PanelSource) int {
	n := 0
	for _, p := range panels {
		if p.Source == source {
			n++
		}
	}
	return n
}

// errIsRetryable сообщает, имеет ли смысл повтор: transient-ошибки повторяем,
// некорректный ответ и ошибки ресурса - нет.
func errIsRetryable(err error) bool {
	return errors.Is(err, models.ErrTransientRemote)
}
