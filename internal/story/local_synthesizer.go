package story

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"manga-server/internal/models"
)

// lexicon - словарь тона для локальной генерации. Структура истории от
// лексикона не зависит: unhinged меняет только слова и интонацию.
type lexicon struct {
	settings       []string
	plotPoints     []string
	emotions       []string
	titleSuffixes  []string
	summaryTail    string
	openingLine    string
	openingReply   string
	finaleLine     string
	finaleReply    string
	dialogueByMood map[string][]string
	responses      []string
	extraLines     []string
}

var regularLexicon = lexicon{
	settings: []string{
		"a mysterious academy", "an ancient temple", "a futuristic city", "a haunted mansion",
		"a magical forest", "an underground laboratory", "a floating island", "a cyberpunk district",
		"a desert oasis", "a mountain peak", "a space station", "a medieval castle",
	},
	plotPoints: []string{
		"discovers a hidden power", "faces their greatest fear", "betrays a trusted ally",
		"uncovers a dark secret", "makes an impossible choice", "confronts their past",
		"saves an enemy", "loses everything", "gains new allies", "breaks an ancient curse",
		"travels through time", "enters another dimension",
	},
	emotions: []string{
		"determined", "conflicted", "angry", "hopeful", "desperate", "confused",
		"triumphant", "sorrowful", "fearful", "excited", "nostalgic", "vengeful",
	},
	titleSuffixes: []string{"Awakening", "Destiny", "Legacy", "Revolution", "Eclipse"},
	summaryTail:   "A tale of courage, mystery, and the bonds that define us.",
	openingLine:   "Something feels different about this place... like it's been waiting for me.",
	openingReply:  "You're more perceptive than I thought. Welcome to your destiny.",
	finaleLine:    "Now I understand... everything led to this moment.",
	finaleReply:   "The choice is yours. What kind of future will you create?",
	dialogueByMood: map[string][]string{
		"determined": {"I won't give up, no matter what!", "This is what I've been training for."},
		"conflicted": {"I don't know what's right anymore...", "How can I choose between them?"},
		"angry":      {"You've gone too far this time!", "I'll make you pay for what you've done!"},
		"hopeful":    {"Maybe there's still a chance...", "I believe we can find another way."},
		"desperate":  {"Please, there has to be something we can do!", "I'm running out of options..."},
		"fearful":    {"What if we're too late?", "I've never been so scared in my life..."},
	},
	responses: []string{
		"The path ahead won't be easy, but we'll face it together.",
		"Every challenge makes us stronger.",
		"Hope is what keeps us going.",
		"We'll find a way, we always do.",
		"Together, we can overcome anything.",
	},
	extraLines: []string{
		"The stakes have never been higher.",
		"Everything we've worked for depends on this.",
		"I can feel the power growing stronger.",
		"The enemy is closer than we thought.",
		"Time is running out.",
	},
}

var unhingedLexicon = lexicon{
	settings: []string{
		"a dystopian underground facility", "a blood-soaked battlefield", "a corrupt corporate tower",
		"a lawless wasteland", "a twisted psychological experiment", "a criminal underworld",
		"a post-apocalyptic city", "a dark web of conspiracies", "a violent gang territory",
		"a morally bankrupt institution", "a hellish nightmare realm", "a savage survival arena",
	},
	plotPoints: []string{
		"brutally confronts their demons", "makes a morally questionable choice", "betrays someone close",
		"discovers a horrifying truth", "commits an unforgivable act", "loses their humanity",
		"embraces their dark side", "destroys everything they love", "becomes the villain",
		"breaks every rule", "crosses the point of no return", "faces ultimate corruption",
	},
	emotions: []string{
		"ruthlessly determined", "psychologically broken", "violently angry", "desperately hopeful",
		"dangerously unstable", "morally conflicted", "coldly calculating", "deeply traumatized",
		"savagely vengeful", "completely unhinged", "darkly amused", "brutally honest",
	},
	titleSuffixes: []string{"Blood & Betrayal", "Chaos Unleashed", "Dark Descent", "Savage Truth", "Broken Souls"},
	summaryTail:   "A brutal tale where morality is a luxury and survival demands sacrifice.",
	openingLine:   "Something's seriously wrong with this place... I can feel it in my bones.",
	openingReply:  "You have no idea what you've gotten yourself into, you naive bastard.",
	finaleLine:    "So this is what I've become... there's no turning back now.",
	finaleReply:   "Welcome to reality. Now you understand the price of power.",
	dialogueByMood: map[string][]string{
		"ruthlessly determined": {"I'll do whatever it takes, no matter who gets hurt.", "Mercy is a weakness I can't afford."},
		"psychologically broken": {"I can't tell what's real anymore...", "The voices won't stop..."},
		"violently angry":        {"I'll tear this whole place apart!", "Someone's going to pay for this!"},
		"desperately hopeful":    {"There has to be another way... please...", "I refuse to believe it's hopeless."},
		"dangerously unstable":   {"Haha... this is getting interesting...", "Let's see how far we can push this."},
		"morally conflicted":     {"Is this who I've become?", "When did I stop caring about right and wrong?"},
	},
	responses: []string{
		"The game is rigged, but we're still playing like idiots.",
		"Morality is a luxury we can't afford out here.",
		"Everyone has a breaking point, and we're way past ours.",
		"Trust is the first casualty of this mess.",
		"Sometimes the hero and villain are the same damn person.",
		"Survival makes monsters of us all.",
	},
	extraLines: []string{
		"The line between hero and villain is thinner than you think.",
		"Everyone's got blood on their hands now.",
		"Survival changes people in terrible ways.",
		"The system is broken, and we're the glitch.",
		"Sometimes the only way out is through hell itself.",
		"We've crossed lines we can never uncross.",
	},
}

// LocalSynthesizer - детерминированный шаблонный генератор историй.
// Работает без сети и не имеет внешних причин отказа.
type LocalSynthesizer struct {
	logger    *zap.Logger
	minScenes int
	maxScenes int
}

// NewLocalSynthesizer создает локальный синтезатор с границами сцен.
func NewLocalSynthesizer(logger *zap.Logger, minScenes, maxScenes int) *LocalSynthesizer {
	return &LocalSynthesizer{logger: logger, minScenes: minScenes, maxScenes: maxScenes}
}

// Synthesize строит историю по фиксированному арочному шаблону:
// setup → rising-action ×k → climax → resolution.
//
// Генерация детерминирована: RNG засеивается хэшем входа. Структурный RNG
// не учитывает режим, поэтому unhinged меняет лексикон и тон, но не
// количество сцен и не форму арки.
func (s *LocalSynthesizer) Synthesize(req models.GenerationRequest, analysis models.AnalysisResult) models.Story {
	structRNG := rand.New(rand.NewSource(seedOf(req, analysis, false)))
	lexRNG := rand.New(rand.NewSource(seedOf(req, analysis, true)))

	lex := regularLexicon
	if req.Mode == models.ModeUnhinged {
		lex = unhingedLexicon
	}

	span := s.maxScenes - s.minScenes + 1
	numScenes := s.minScenes + structRNG.Intn(span)

	// Структурные решения фиксируем заранее, чтобы лексические выборы
	// не влияли на форму истории.
	extraLineAt := make([]bool, numScenes)
	for i := 1; i < numScenes-1; i++ {
		extraLineAt[i] = structRNG.Float64() > 0.6
	}

	setting := lex.settings[lexRNG.Intn(len(lex.settings))]
	mainPlot := lex.plotPoints[lexRNG.Intn(len(lex.plotPoints))]
	suffix := lex.titleSuffixes[lexRNG.Intn(len(lex.titleSuffixes))]

	var title string
	if req.Mode == models.ModeUnhinged {
		title = fmt.Sprintf("%s: %s", req.Prompt, suffix)
	} else {
		title = fmt.Sprintf("Chronicles of %s: %s", req.Prompt, suffix)
	}
	summary := fmt.Sprintf("In %s, %s %s. %s", setting, req.Characters[0], mainPlot, lex.summaryTail)

	speaker := newRoundRobin(req.Characters)
	scenes := make([]models.Scene, 0, numScenes)

	for i := 0; i < numScenes; i++ {
		scene := models.Scene{Index: i, EmotionalBeat: beatFor(i, numScenes)}

		switch {
		case i == 0:
			scene.Description = fmt.Sprintf("Opening: %s arrives at %s, sensing that everything is about to change.", req.Characters[0], setting)
			scene.Dialogue = []models.DialogueLine{
				{Character: speaker.next(), Text: lex.openingLine},
				{Character: speaker.next(), Text: lex.openingReply},
			}
		case i == numScenes-1:
			scene.Description = fmt.Sprintf("Finale: the truth behind %s is revealed and %s must make the choice that decides everyone's fate.", setting, req.Characters[0])
			scene.Dialogue = []models.DialogueLine{
				{Character: speaker.next(), Text: lex.finaleLine},
				{Character: speaker.next(), Text: lex.finaleReply},
			}
		default:
			emotion := lex.emotions[lexRNG.Intn(len(lex.emotions))]
			plot := lex.plotPoints[lexRNG.Intn(len(lex.plotPoints))]
			scene.Description = fmt.Sprintf("Scene %d: feeling %s, %s %s while navigating %s.", i+1, emotion, req.Characters[0], plot, setting)
			if theme := themeFor(analysis, i); theme != "" {
				scene.Description += fmt.Sprintf(" Echoes of %s hang in the air.", theme)
			}

			mainLine := pickMoodLine(lex, emotion, lexRNG)
			scene.Dialogue = []models.DialogueLine{
				{Character: speaker.next(), Text: mainLine},
				{Character: speaker.next(), Text: lex.responses[lexRNG.Intn(len(lex.responses))]},
			}
			if extraLineAt[i] {
				scene.Dialogue = append(scene.Dialogue, models.DialogueLine{
					Character: speaker.next(),
					Text:      lex.extraLines[lexRNG.Intn(len(lex.extraLines))],
				})
			}
		}

		scenes = append(scenes, scene)
	}

	s.logger.Debug("Local story synthesized",
		zap.Int("scenes", numScenes),
		zap.String("mode", string(req.Mode)),
		zap.String("genre", string(analysis.Genre)),
	)

	return models.Story{
		Title:   title,
		Summary: summary,
		Scenes:  scenes,
		Source:  models.SourceLocal,
	}
}

// beatFor раскладывает арку по индексам: первая сцена - setup, предпоследняя -
// climax, последняя - resolution, все между ними - rising action.
func beatFor(index, total int) models.EmotionalBeat {
	switch {
	case index == 0:
		return models.BeatSetup
	case index == total-1:
		return models.BeatResolution
	case index == total-2:
		return models.BeatClimax
	default:
		return models.BeatRising
	}
}

// pickMoodLine выбирает реплику по эмоции сцены; для эмоций без шаблона
// берется нейтральная реплика из общего пула.
func pickMoodLine(lex lexicon, emotion string, rng *rand.Rand) string {
	if lines, ok := lex.dialogueByMood[emotion]; ok {
		return lines[rng.Intn(len(lines))]
	}
	return lex.responses[rng.Intn(len(lex.responses))]
}

// themeFor возвращает тему анализа для вплетения в описание сцены.
func themeFor(analysis models.AnalysisResult, sceneIndex int) string {
	if len(analysis.Themes) == 0 {
		return ""
	}
	// Вплетаем темы не в каждую сцену, чтобы текст не становился однообразным
	if sceneIndex%3 != 1 {
		return ""
	}
	return analysis.Themes[(sceneIndex/3)%len(analysis.Themes)]
}

// roundRobin выдает персонажей по кругу, сохраняя порядок запроса.
type roundRobin struct {
	names []string
	pos   int
}

func newRoundRobin(names []string) *roundRobin {
	return &roundRobin{names: names}
}

func (r *roundRobin) next() string {
	name := r.names[r.pos%len(r.names)]
	r.pos++
	return name
}

// seedOf хэширует вход генерации в seed. withMode=false дает структурный
// seed, общий для regular и unhinged.
func seedOf(req models.GenerationRequest, analysis models.AnalysisResult, withMode bool) int64 {
	h := fnv.New64a()
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(req.Characters, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(analysis.Genre))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(analysis.Keywords, "\x00")))
	if withMode {
		h.Write([]byte{0})
		h.Write([]byte(req.Mode))
	}
	return int64(h.Sum64())
}
