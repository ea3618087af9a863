package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.StoryMinScenes)
	assert.Equal(t, 15, cfg.StoryMaxScenes)
	assert.Equal(t, 2, cfg.AIMaxAttempts)
	assert.Equal(t, 4, cfg.PanelWorkers)
	assert.Equal(t, 200, cfg.ReadingSpeedWPM)
	assert.Equal(t, "sd-manga-v1", cfg.ImageModelID)
}

func TestLoad_InvalidSceneBounds(t *testing.T) {
	t.Setenv("STORY_MIN_SCENES", "20")
	t.Setenv("STORY_MAX_SCENES", "10")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidAttempts(t *testing.T) {
	t.Setenv("AI_MAX_ATTEMPTS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestRemoteStoryEnabled(t *testing.T) {
	t.Run("openai requires api key", func(t *testing.T) {
		cfg := Config{AIClientType: "openai"}
		assert.False(t, cfg.RemoteStoryEnabled())

		cfg.AIAPIKey = "sk-test"
		assert.True(t, cfg.RemoteStoryEnabled())
	})

	t.Run("ollama requires only base url", func(t *testing.T) {
		cfg := Config{AIClientType: "ollama", AIBaseURL: "http://localhost:11434"}
		assert.True(t, cfg.RemoteStoryEnabled())
	})
}

func TestRemotePanelEnabled(t *testing.T) {
	cfg := Config{}
	assert.False(t, cfg.RemotePanelEnabled())

	cfg.ImageServerBaseURL = "http://localhost:7860"
	assert.True(t, cfg.RemotePanelEnabled())
}
