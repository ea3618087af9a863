package models

import "strings"

// GenerationMode определяет тон генерируемого контента.
type GenerationMode string

const (
	ModeRegular  GenerationMode = "regular"
	ModeUnhinged GenerationMode = "unhinged"
)

// GenerationRequest - входной запрос на генерацию манги.
// Клиенты передают режим либо флагом unhinged, либо строковым mode;
// Normalize сводит оба поля к одному значению Mode.
type GenerationRequest struct {
	Prompt     string         `json:"prompt"`
	Characters []string       `json:"characters"`
	Unhinged   bool           `json:"unhinged,omitempty"`
	Mode       GenerationMode `json:"mode,omitempty"`
}

// Normalize приводит запрос к каноническому виду: обрезает пробелы,
// удаляет дубликаты и пустые имена персонажей, подставляет значения
// по умолчанию. Порядок персонажей сохраняется.
func (r *GenerationRequest) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Prompt == "" {
		r.Prompt = "A mysterious adventure"
	}

	seen := make(map[string]struct{}, len(r.Characters))
	cleaned := make([]string, 0, len(r.Characters))
	for _, name := range r.Characters {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		cleaned = append(cleaned, name)
	}
	if len(cleaned) == 0 {
		cleaned = []string{"Protagonist", "Antagonist"}
	}
	r.Characters = cleaned

	if r.Unhinged {
		r.Mode = ModeUnhinged
	}
	if r.Mode != ModeUnhinged {
		r.Mode = ModeRegular
	}
	r.Unhinged = r.Mode == ModeUnhinged
}

// Genre - жанр, определенный NLP-анализатором.
type Genre string

const (
	GenreAction  Genre = "action"
	GenreRomance Genre = "romance"
	GenreHorror  Genre = "horror"
	GenreSciFi   Genre = "scifi"
	GenreFantasy Genre = "fantasy"
	GenreComedy  Genre = "comedy"
	GenreDrama   Genre = "drama"
	GenreGeneral Genre = "general"
)

// AnalysisResult - результат NLP-анализа промпта.
// Структура неизменяема после создания и только читается ниже по конвейеру.
type AnalysisResult struct {
	Genre     Genre    `json:"genre"`
	Sentiment float64  `json:"sentiment"` // [-1, 1]
	Keywords  []string `json:"keywords"`
	Themes    []string `json:"themes"`
}

// EmotionalBeat - эмоциональный такт сцены, определяет фон локального рендера.
type EmotionalBeat string

const (
	BeatSetup      EmotionalBeat = "setup"
	BeatRising     EmotionalBeat = "rising"
	BeatClimax     EmotionalBeat = "climax"
	BeatResolution EmotionalBeat = "resolution"
)

// DialogueLine - одна реплика персонажа.
type DialogueLine struct {
	Character string `json:"character"`
	Text      string `json:"text"`
}

// Scene - один нарративный такт истории, отображается 1:1 в панель.
// Индексы начинаются с 0 и идут без пропусков. После создания сцена не мутирует.
type Scene struct {
	Index         int            `json:"index"`
	Description   string         `json:"description"`
	Dialogue      []DialogueLine `json:"dialogue"`
	EmotionalBeat EmotionalBeat  `json:"emotional_beat"`
}

// StoryMetadata - вычисляемые метаданные истории.
type StoryMetadata struct {
	Themes                      []string `json:"themes"`
	EstimatedReadingTimeSeconds int      `json:"estimated_reading_time_seconds"`
	SceneCount                  int      `json:"scene_count"`
}

// StorySource указывает, какой путь породил историю.
type StorySource string

const (
	SourceRemote StorySource = "remote"
	SourceLocal  StorySource = "local"
)

// Story - полная история из 10-15 сцен с метаданными.
type Story struct {
	Title    string        `json:"title"`
	Summary  string        `json:"summary"`
	Scenes   []Scene       `json:"scenes"`
	Metadata StoryMetadata `json:"metadata"`
	// Source фиксирует путь генерации (remote/local) для наблюдаемости и тестов.
	Source StorySource `json:"source"`
}

// WordCount возвращает суммарное количество слов в описаниях и репликах.
func (s *Story) WordCount() int {
	total := 0
	for _, scene := range s.Scenes {
		total += len(strings.Fields(scene.Description))
		for _, line := range scene.Dialogue {
			total += len(strings.Fields(line.Text))
		}
	}
	return total
}

// PanelSource указывает, какой путь породил панель.
type PanelSource string

const (
	PanelSourceRemote PanelSource = "remote"
	PanelSourceLocal  PanelSource = "local"
)

// Panel - отрендеренная панель, соответствующая сцене.
type Panel struct {
	SceneIndex int            `json:"scene_index"`
	ImagePath  string         `json:"image_path"`
	Dialogue   []DialogueLine `json:"dialogue"`
	Source     PanelSource    `json:"source"`
	Attempt    int            `json:"attempt"`
}

// MangaResult - итоговый результат конвейера: панели в порядке сцен, 1:1.
// Собирается один раз и далее не изменяется.
type MangaResult struct {
	Title  string  `json:"title"`
	Panels []Panel `json:"panels"`
}
