package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"manga-server/internal/models"
	"manga-server/internal/nlp"
	"manga-server/internal/panel"
	"manga-server/internal/pipeline"
	"manga-server/internal/story"
)

// newLocalController собирает конвейер целиком на локальных путях:
// без сети, детерминированно, как работает сервис без внешних зависимостей.
func newLocalController(t *testing.T) *pipeline.Controller {
	t.Helper()
	logger := zap.NewNop()

	analyzer := nlp.NewAnalyzer(logger, 8)
	localSynth := story.NewLocalSynthesizer(logger, 10, 15)
	storyOrch := story.NewOrchestrator(nil, localSynth, logger, story.Options{
		MaxAttempts:     1,
		MinScenes:       10,
		MaxScenes:       15,
		ReadingSpeedWPM: 200,
	})

	dir := t.TempDir()
	renderer := panel.NewRenderer(dir, 100, 80, logger)
	panelOrch := panel.NewOrchestrator(nil, renderer, nil, logger, panel.Options{
		Workers:     4,
		MaxAttempts: 1,
		Width:       100,
		Height:      80,
		OutputsDir:  dir,
	})

	return pipeline.NewController(analyzer, storyOrch, panelOrch, logger)
}

func TestController_Generate_EndToEnd(t *testing.T) {
	controller := newLocalController(t)

	result, generated, err := controller.Generate(context.Background(), models.GenerationRequest{
		Prompt:     "A ninja defends an ancient temple from demons",
		Characters: []string{"Rei", "Kenta"},
	})
	require.NoError(t, err)

	assert.Equal(t, generated.Title, result.Title)
	require.Len(t, result.Panels, len(generated.Scenes))

	for i, p := range result.Panels {
		assert.Equal(t, i, p.SceneIndex)
		assert.FileExists(t, p.ImagePath)
		assert.Equal(t, generated.Scenes[i].Dialogue, p.Dialogue)
	}

	assert.GreaterOrEqual(t, len(generated.Scenes), 10)
	assert.LessOrEqual(t, len(generated.Scenes), 15)
	assert.Equal(t, len(generated.Scenes), generated.Metadata.SceneCount)
}

func TestController_Generate_NormalizesEmptyRequest(t *testing.T) {
	controller := newLocalController(t)

	result, generated, err := controller.Generate(context.Background(), models.GenerationRequest{})
	require.NoError(t, err)

	// Пустой запрос нормализуется в значения по умолчанию, а не падает
	assert.NotEmpty(t, result.Panels)
	assert.Contains(t, generated.Title, "A mysterious adventure")
}

func TestController_GenerateStoryOnly(t *testing.T) {
	controller := newLocalController(t)

	generated, analysis := controller.GenerateStoryOnly(context.Background(), models.GenerationRequest{
		Prompt: "A wizard breaks the dragon curse over the kingdom",
	})

	assert.Equal(t, models.GenreFantasy, analysis.Genre)
	assert.NotEmpty(t, generated.Scenes)
	assert.Equal(t, models.SourceLocal, generated.Source)
}
