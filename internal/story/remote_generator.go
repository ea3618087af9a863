package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"manga-server/internal/models"
)

// RemoteGenerator получает историю от языковой модели и нормализует ответ.
type RemoteGenerator struct {
	client    AIClient
	logger    *zap.Logger
	minScenes int
	maxScenes int
}

// NewRemoteGenerator создает удаленный генератор поверх AIClient.
func NewRemoteGenerator(client AIClient, logger *zap.Logger, minScenes, maxScenes int) *RemoteGenerator {
	return &RemoteGenerator{client: client, logger: logger, minScenes: minScenes, maxScenes: maxScenes}
}

// remoteStoryPayload - ожидаемая форма JSON-ответа модели.
type remoteStoryPayload struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Scenes  []struct {
		Description   string `json:"description"`
		EmotionalBeat string `json:"emotional_beat"`
		Dialogue      []struct {
			Character string `json:"character"`
			Text      string `json:"text"`
		} `json:"dialogue"`
	} `json:"scenes"`
}

const regularSystemPrompt = `You are a manga story generator. Create an engaging, well-paced manga story.
Respond with a single JSON object and nothing else.`

const unhingedSystemPrompt = `You are an unhinged, uncensored manga story generator. Create a dark, twisted,
unpredictable story with morally ambiguous characters, shocking plot twists and raw, natural dialogue.
Respond with a single JSON object and nothing else.`

// Generate вызывает языковую модель и возвращает нормализованную историю.
// Ошибки клиента помечаются как transient, ошибки формата - как invalid payload.
func (g *RemoteGenerator) Generate(ctx context.Context, req models.GenerationRequest, analysis models.AnalysisResult) (models.Story, error) {
	systemPrompt := regularSystemPrompt
	temperature := 0.8
	if req.Mode == models.ModeUnhinged {
		systemPrompt = unhingedSystemPrompt
		temperature = 1.2
	}

	userPrompt := g.buildUserPrompt(req, analysis)

	raw, usage, err := g.client.GenerateText(ctx, systemPrompt, userPrompt, GenerationParams{
		Temperature: &temperature,
	})
	if err != nil {
		return models.Story{}, fmt.Errorf("%w: %v", models.ErrTransientRemote, err)
	}
	g.logger.Debug("Remote story response received",
		zap.Int("response_length", len(raw)),
		zap.Int("total_tokens", usage.TotalTokens),
	)

	story, err := g.parseResponse(raw)
	if err != nil {
		return models.Story{}, err
	}
	return story, nil
}

// buildUserPrompt собирает пользовательский промпт с персонажами и тегами анализа.
func (g *RemoteGenerator) buildUserPrompt(req models.GenerationRequest, analysis models.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a manga story with %d-%d scenes based on: %q\n", g.minScenes, g.maxScenes, req.Prompt)
	fmt.Fprintf(&b, "Characters: %s\n", strings.Join(req.Characters, ", "))
	fmt.Fprintf(&b, "Genre: %s\n", analysis.Genre)
	if len(analysis.Themes) > 0 {
		fmt.Fprintf(&b, "Themes to weave in: %s\n", strings.Join(analysis.Themes, ", "))
	}
	b.WriteString(`
Requirements:
- Every dialogue line must belong to one of the listed characters.
- Each scene needs a vivid visual description suitable for a manga panel.

Format as a JSON object:
{
  "title": "...",
  "summary": "...",
  "scenes": [
    {
      "description": "...",
      "emotional_beat": "setup|rising|climax|resolution",
      "dialogue": [{"character": "...", "text": "..."}]
    }
  ]
}`)
	return b.String()
}

// parseResponse разбирает и нормализует JSON ответа модели. Модели иногда
// оборачивают JSON в markdown-ограждение - срезаем его перед разбором.
func (g *RemoteGenerator) parseResponse(raw string) (models.Story, error) {
	cleaned := stripJSONFence(raw)

	var payload remoteStoryPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return models.Story{}, fmt.Errorf("%w: malformed JSON: %v", models.ErrInvalidRemotePayload, err)
	}
	if len(payload.Scenes) == 0 {
		return models.Story{}, fmt.Errorf("%w: response contains no scenes", models.ErrInvalidRemotePayload)
	}

	scenes := make([]models.Scene, 0, len(payload.Scenes))
	for i, ps := range payload.Scenes {
		if strings.TrimSpace(ps.Description) == "" {
			return models.Story{}, fmt.Errorf("%w: scene %d has empty description", models.ErrInvalidRemotePayload, i)
		}
		scene := models.Scene{
			Index:         i,
			Description:   strings.TrimSpace(ps.Description),
			EmotionalBeat: normalizeBeat(ps.EmotionalBeat, i, len(payload.Scenes)),
		}
		for _, d := range ps.Dialogue {
			character := strings.TrimSpace(d.Character)
			text := strings.TrimSpace(d.Text)
			if character == "" || text == "" {
				continue
			}
			scene.Dialogue = append(scene.Dialogue, models.DialogueLine{Character: character, Text: text})
		}
		scenes = append(scenes, scene)
	}

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		return models.Story{}, fmt.Errorf("%w: response has empty title", models.ErrInvalidRemotePayload)
	}

	return models.Story{
		Title:   title,
		Summary: strings.TrimSpace(payload.Summary),
		Scenes:  scenes,
		Source:  models.SourceRemote,
	}, nil
}

// normalizeBeat проверяет такт сцены из ответа модели; неизвестные значения
// заменяются позиционным тактом арки.
func normalizeBeat(raw string, index, total int) models.EmotionalBeat {
	switch models.EmotionalBeat(strings.ToLower(strings.TrimSpace(raw))) {
	case models.BeatSetup:
		return models.BeatSetup
	case models.BeatRising:
		return models.BeatRising
	case models.BeatClimax:
		return models.BeatClimax
	case models.BeatResolution:
		return models.BeatResolution
	default:
		return beatFor(index, total)
	}
}

// stripJSONFence срезает markdown-ограждение ```json ... ``` вокруг ответа.
func stripJSONFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// errIsRetryable сообщает, имеет ли смысл повтор: transient-ошибки повторяем,
// некорректный формат ответа - нет.
func errIsRetryable(err error) bool {
	return errors.Is(err, models.ErrTransientRemote)
}
