package panel

import (
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"manga-server/internal/models"
)

func testScene(beat models.EmotionalBeat) models.Scene {
	return models.Scene{
		Index:         3,
		Description:   "Rei faces the storm at the temple gate",
		EmotionalBeat: beat,
		Dialogue: []models.DialogueLine{
			{Character: "Rei", Text: "I won't give up!"},
			{Character: "Kenta", Text: "Then we fight together."},
		},
	}
}

func TestRenderer_ComposeDeterministic(t *testing.T) {
	r := NewRenderer(t.TempDir(), 400, 300, zap.NewNop())
	scene := testScene(models.BeatClimax)

	first := r.Compose(scene, "action")
	second := r.Compose(scene, "action")

	assert.Equal(t, first.Pix, second.Pix)
}

func TestRenderer_ComposeVariesByInput(t *testing.T) {
	r := NewRenderer(t.TempDir(), 400, 300, zap.NewNop())

	climax := r.Compose(testScene(models.BeatClimax), "action")
	setup := r.Compose(testScene(models.BeatSetup), "action")

	assert.NotEqual(t, climax.Pix, setup.Pix)
}

func TestRenderer_RenderWritesDecodablePNG(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir, 400, 300, zap.NewNop())

	path, err := r.Render(testScene(models.BeatRising), "drama")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "panel_003_"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

func TestRenderer_RenderFailsOnUnwritableDir(t *testing.T) {
	r := NewRenderer(filepath.Join(string(os.PathSeparator), "proc", "no-such-dir"), 100, 100, zap.NewNop())

	_, err := r.Render(testScene(models.BeatSetup), "action")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrResource)
}
