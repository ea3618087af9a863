package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"manga-server/internal/models"
)

func TestAnalyze_GenreDetection(t *testing.T) {
	analyzer := NewAnalyzer(zap.NewNop(), 8)

	testCases := []struct {
		name   string
		prompt string
		want   models.Genre
	}{
		{"action", "A ninja seeks revenge in an epic battle against the samurai clan", models.GenreAction},
		{"romance", "A love story about a confession at a wedding", models.GenreRomance},
		{"horror", "A haunted mansion full of ghosts and a terrible curse", models.GenreHorror},
		{"scifi", "A robot awakens on a space station orbiting a distant galaxy", models.GenreSciFi},
		{"fantasy", "A wizard must break the dragon's spell over the kingdom", models.GenreFantasy},
		{"no genre words", "Someone walks around town doing ordinary things", models.GenreGeneral},
		{"empty prompt", "", models.GenreGeneral},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := analyzer.Analyze(tc.prompt)
			assert.Equal(t, tc.want, result.Genre)
		})
	}
}

func TestAnalyze_Sentiment(t *testing.T) {
	analyzer := NewAnalyzer(zap.NewNop(), 8)

	t.Run("positive prompt", func(t *testing.T) {
		result := analyzer.Analyze("A brave hero brings hope and joy to a peace loving village")
		assert.Greater(t, result.Sentiment, 0.0)
		assert.LessOrEqual(t, result.Sentiment, 1.0)
	})

	t.Run("negative prompt", func(t *testing.T) {
		result := analyzer.Analyze("Death and despair follow the dark curse of betrayal")
		assert.Less(t, result.Sentiment, 0.0)
		assert.GreaterOrEqual(t, result.Sentiment, -1.0)
	})

	t.Run("neutral prompt defaults to zero", func(t *testing.T) {
		result := analyzer.Analyze("A person opens a door and walks inside")
		assert.Equal(t, 0.0, result.Sentiment)
	})

	t.Run("empty prompt defaults to zero", func(t *testing.T) {
		result := analyzer.Analyze("")
		assert.Equal(t, 0.0, result.Sentiment)
	})
}

func TestAnalyze_Keywords(t *testing.T) {
	analyzer := NewAnalyzer(zap.NewNop(), 3)

	t.Run("stopwords are filtered", func(t *testing.T) {
		result := analyzer.Analyze("the dragon and the wizard of the kingdom")
		assert.NotContains(t, result.Keywords, "the")
		assert.NotContains(t, result.Keywords, "and")
		assert.NotContains(t, result.Keywords, "of")
	})

	t.Run("limit is honored", func(t *testing.T) {
		result := analyzer.Analyze("dragon wizard kingdom castle quest spell prophecy")
		assert.LessOrEqual(t, len(result.Keywords), 3)
	})

	t.Run("frequency wins over position", func(t *testing.T) {
		result := analyzer.Analyze("castle dragon dragon dragon wizard wizard")
		assert.Equal(t, []string{"dragon", "wizard", "castle"}, result.Keywords)
	})

	t.Run("empty prompt gives no keywords", func(t *testing.T) {
		result := analyzer.Analyze("")
		assert.Empty(t, result.Keywords)
	})
}

func TestAnalyze_Themes(t *testing.T) {
	analyzer := NewAnalyzer(zap.NewNop(), 8)

	result := analyzer.Analyze("A wizard and a dragon guard an ancient kingdom")
	assert.NotEmpty(t, result.Themes)
	assert.LessOrEqual(t, len(result.Themes), 3)
	// Слова из лексикона жанра должны попасть в темы первыми
	assert.Contains(t, result.Themes, "wizard")
}

func TestAnalyze_Deterministic(t *testing.T) {
	analyzer := NewAnalyzer(zap.NewNop(), 8)
	prompt := "A ninja and a robot fight over an ancient sword"

	first := analyzer.Analyze(prompt)
	second := analyzer.Analyze(prompt)
	assert.Equal(t, first, second)
}
