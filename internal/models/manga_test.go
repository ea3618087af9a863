package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationRequest_Normalize(t *testing.T) {
	t.Run("defaults for empty request", func(t *testing.T) {
		req := GenerationRequest{}
		req.Normalize()

		assert.Equal(t, "A mysterious adventure", req.Prompt)
		assert.Equal(t, []string{"Protagonist", "Antagonist"}, req.Characters)
		assert.Equal(t, ModeRegular, req.Mode)
	})

	t.Run("trims and deduplicates characters preserving order", func(t *testing.T) {
		req := GenerationRequest{
			Prompt:     "  quest  ",
			Characters: []string{" Rei ", "Kenta", "Rei", "", "  "},
		}
		req.Normalize()

		assert.Equal(t, "quest", req.Prompt)
		assert.Equal(t, []string{"Rei", "Kenta"}, req.Characters)
	})

	t.Run("unknown mode collapses to regular", func(t *testing.T) {
		req := GenerationRequest{Prompt: "x", Characters: []string{"A"}, Mode: "chaotic"}
		req.Normalize()
		assert.Equal(t, ModeRegular, req.Mode)
	})

	t.Run("unhinged mode is preserved", func(t *testing.T) {
		req := GenerationRequest{Prompt: "x", Characters: []string{"A"}, Mode: ModeUnhinged}
		req.Normalize()
		assert.Equal(t, ModeUnhinged, req.Mode)
		assert.True(t, req.Unhinged)
	})

	t.Run("unhinged flag maps to unhinged mode", func(t *testing.T) {
		req := GenerationRequest{Prompt: "x", Characters: []string{"A"}, Unhinged: true}
		req.Normalize()
		assert.Equal(t, ModeUnhinged, req.Mode)
	})

	t.Run("unhinged flag survives JSON binding", func(t *testing.T) {
		var req GenerationRequest
		payload := `{"prompt":"A ninja's quest for revenge","characters":["Ninja","Shadow Master"],"unhinged":true}`
		require.NoError(t, json.Unmarshal([]byte(payload), &req))
		req.Normalize()
		assert.Equal(t, ModeUnhinged, req.Mode)
	})
}

func TestStory_WordCount(t *testing.T) {
	story := Story{
		Scenes: []Scene{
			{
				Description: "three word scene",
				Dialogue: []DialogueLine{
					{Character: "A", Text: "two words"},
				},
			},
			{Description: "one"},
		},
	}
	assert.Equal(t, 6, story.WordCount())
}
