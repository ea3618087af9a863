package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"manga-server/internal/models"
)

func testRequest(mode models.GenerationMode) models.GenerationRequest {
	req := models.GenerationRequest{
		Prompt:     "A ninja guards an ancient temple",
		Characters: []string{"Rei", "Kenta", "Yuna"},
		Mode:       mode,
	}
	req.Normalize()
	return req
}

func testAnalysis() models.AnalysisResult {
	return models.AnalysisResult{
		Genre:    models.GenreAction,
		Keywords: []string{"ninja", "temple", "ancient"},
		Themes:   []string{"ninja", "temple"},
	}
}

func TestLocalSynthesizer_SceneBounds(t *testing.T) {
	synth := NewLocalSynthesizer(zap.NewNop(), 10, 15)

	prompts := []string{"quest", "revenge", "a long journey home", "space pirates", "school festival"}
	for _, prompt := range prompts {
		req := models.GenerationRequest{Prompt: prompt, Characters: []string{"A", "B"}}
		req.Normalize()
		story := synth.Synthesize(req, testAnalysis())

		assert.GreaterOrEqual(t, len(story.Scenes), 10, "prompt %q", prompt)
		assert.LessOrEqual(t, len(story.Scenes), 15, "prompt %q", prompt)
	}
}

func TestLocalSynthesizer_ArcShape(t *testing.T) {
	synth := NewLocalSynthesizer(zap.NewNop(), 10, 15)
	story := synth.Synthesize(testRequest(models.ModeRegular), testAnalysis())

	total := len(story.Scenes)
	require.GreaterOrEqual(t, total, 4)

	assert.Equal(t, models.BeatSetup, story.Scenes[0].EmotionalBeat)
	assert.Equal(t, models.BeatClimax, story.Scenes[total-2].EmotionalBeat)
	assert.Equal(t, models.BeatResolution, story.Scenes[total-1].EmotionalBeat)
	for i := 1; i < total-2; i++ {
		assert.Equal(t, models.BeatRising, story.Scenes[i].EmotionalBeat, "scene %d", i)
	}
}

func TestLocalSynthesizer_IndicesAndCast(t *testing.T) {
	synth := NewLocalSynthesizer(zap.NewNop(), 10, 15)
	req := testRequest(models.ModeRegular)
	story := synth.Synthesize(req, testAnalysis())

	known := map[string]bool{}
	for _, name := range req.Characters {
		known[name] = true
	}

	for i, scene := range story.Scenes {
		assert.Equal(t, i, scene.Index)
		assert.NotEmpty(t, scene.Description)
		assert.NotEmpty(t, scene.Dialogue)
		for _, line := range scene.Dialogue {
			assert.True(t, known[line.Character], "unknown speaker %q in scene %d", line.Character, i)
			assert.NotEmpty(t, line.Text)
		}
	}
	assert.Equal(t, models.SourceLocal, story.Source)
	assert.NotEmpty(t, story.Title)
	assert.NotEmpty(t, story.Summary)
}

func TestLocalSynthesizer_Deterministic(t *testing.T) {
	synth := NewLocalSynthesizer(zap.NewNop(), 10, 15)
	req := testRequest(models.ModeRegular)
	analysis := testAnalysis()

	first := synth.Synthesize(req, analysis)
	second := synth.Synthesize(req, analysis)
	assert.Equal(t, first, second)
}

func TestLocalSynthesizer_UnhingedKeepsStructure(t *testing.T) {
	synth := NewLocalSynthesizer(zap.NewNop(), 10, 15)
	analysis := testAnalysis()

	regular := synth.Synthesize(testRequest(models.ModeRegular), analysis)
	unhinged := synth.Synthesize(testRequest(models.ModeUnhinged), analysis)

	// Структура идентична: количество сцен, арка, количество реплик
	require.Equal(t, len(regular.Scenes), len(unhinged.Scenes))
	for i := range regular.Scenes {
		assert.Equal(t, regular.Scenes[i].EmotionalBeat, unhinged.Scenes[i].EmotionalBeat, "scene %d", i)
		assert.Equal(t, len(regular.Scenes[i].Dialogue), len(unhinged.Scenes[i].Dialogue), "scene %d", i)
	}

	// Тон отличается: заголовки и реплики из разных лексиконов
	assert.NotEqual(t, regular.Title, unhinged.Title)
}

func TestBeatFor(t *testing.T) {
	assert.Equal(t, models.BeatSetup, beatFor(0, 10))
	assert.Equal(t, models.BeatRising, beatFor(4, 10))
	assert.Equal(t, models.BeatClimax, beatFor(8, 10))
	assert.Equal(t, models.BeatResolution, beatFor(9, 10))
}
