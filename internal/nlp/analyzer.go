package nlp

import (
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"manga-server/internal/models"
)

// Analyzer извлекает жанр, тональность и ключевые слова из промпта.
// Анализ никогда не завершается ошибкой: пустой ввод дает значения по умолчанию.
type Analyzer struct {
	logger       *zap.Logger
	keywordLimit int
}

// NewAnalyzer создает анализатор. keywordLimit <= 0 заменяется значением 8.
func NewAnalyzer(logger *zap.Logger, keywordLimit int) *Analyzer {
	if keywordLimit <= 0 {
		keywordLimit = 8
	}
	return &Analyzer{logger: logger, keywordLimit: keywordLimit}
}

// genreLexicon - лексикон одного жанра. Порядок объявления в genreLexicons
// определяет победителя при равном счете.
type genreLexicon struct {
	genre models.Genre
	words []string
}

var genreLexicons = []genreLexicon{
	{models.GenreAction, []string{
		"fight", "battle", "war", "revenge", "ninja", "samurai", "sword",
		"warrior", "attack", "combat", "mission", "enemy", "assassin", "duel",
	}},
	{models.GenreRomance, []string{
		"love", "heart", "romance", "kiss", "wedding", "crush", "confession",
		"date", "beloved", "affection",
	}},
	{models.GenreHorror, []string{
		"ghost", "demon", "horror", "haunted", "nightmare", "curse", "blood",
		"monster", "fear", "darkness", "undead", "zombie",
	}},
	{models.GenreSciFi, []string{
		"space", "robot", "cyber", "future", "alien", "android", "station",
		"galaxy", "machine", "simulation", "technology", "ai",
	}},
	{models.GenreFantasy, []string{
		"magic", "dragon", "wizard", "kingdom", "quest", "spell", "elf",
		"sorcerer", "prophecy", "realm", "ancient", "legend",
	}},
	{models.GenreComedy, []string{
		"funny", "comedy", "laugh", "joke", "silly", "prank", "awkward",
		"ridiculous", "clumsy",
	}},
	{models.GenreDrama, []string{
		"family", "betrayal", "secret", "loss", "grief", "friendship",
		"sacrifice", "memory", "past", "truth",
	}},
}

var positiveWords = map[string]struct{}{
	"love": {}, "hope": {}, "joy": {}, "victory": {}, "friend": {}, "happy": {},
	"brave": {}, "hero": {}, "peace": {}, "dream": {}, "light": {}, "triumph": {},
	"wonderful": {}, "beautiful": {}, "kind": {}, "save": {}, "rescue": {},
}

var negativeWords = map[string]struct{}{
	"revenge": {}, "death": {}, "dark": {}, "fear": {}, "betrayal": {}, "hate": {},
	"war": {}, "pain": {}, "loss": {}, "curse": {}, "blood": {}, "despair": {},
	"evil": {}, "destroy": {}, "kill": {}, "tragedy": {}, "nightmare": {},
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "of": {},
	"for": {}, "to": {}, "in": {}, "on": {}, "at": {}, "by": {}, "with": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"it": {}, "its": {}, "his": {}, "her": {}, "their": {}, "this": {}, "that": {},
	"as": {}, "from": {}, "into": {}, "about": {}, "who": {}, "what": {}, "s": {},
}

// Analyze выполняет полный анализ промпта.
func (a *Analyzer) Analyze(prompt string) models.AnalysisResult {
	tokens := tokenize(prompt)

	result := models.AnalysisResult{
		Genre:     a.detectGenre(tokens),
		Sentiment: a.scoreSentiment(tokens),
		Keywords:  a.extractKeywords(tokens),
	}
	result.Themes = a.deriveThemes(result.Genre, result.Keywords)

	a.logger.Debug("Prompt analyzed",
		zap.String("genre", string(result.Genre)),
		zap.Float64("sentiment", result.Sentiment),
		zap.Strings("keywords", result.Keywords),
	)
	return result
}

// detectGenre выбирает жанр с максимальным счетом совпадений по лексикону.
// При равенстве побеждает жанр, объявленный раньше.
func (a *Analyzer) detectGenre(tokens []string) models.Genre {
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	best := models.GenreGeneral
	bestScore := 0
	for _, lex := range genreLexicons {
		score := 0
		for _, w := range lex.words {
			score += counts[w]
		}
		if score > bestScore {
			bestScore = score
			best = lex.genre
		}
	}
	return best
}

// scoreSentiment считает полярность: (pos - neg) / (pos + neg), в [-1, 1].
// Нейтральный или пустой текст дает 0.0.
func (a *Analyzer) scoreSentiment(tokens []string) float64 {
	pos, neg := 0, 0
	for _, tok := range tokens {
		if _, ok := positiveWords[tok]; ok {
			pos++
		}
		if _, ok := negativeWords[tok]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0.0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// extractKeywords возвращает до keywordLimit наиболее частых токенов без
// стоп-слов. При равной частоте порядок определяется первым вхождением.
func (a *Analyzer) extractKeywords(tokens []string) []string {
	type entry struct {
		word  string
		count int
		first int
	}
	index := make(map[string]*entry)
	order := make([]*entry, 0)

	for i, tok := range tokens {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if len(tok) < 2 {
			continue
		}
		if e, ok := index[tok]; ok {
			e.count++
			continue
		}
		e := &entry{word: tok, count: 1, first: i}
		index[tok] = e
		order = append(order, e)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].first < order[j].first
	})

	limit := a.keywordLimit
	if limit > len(order) {
		limit = len(order)
	}
	keywords := make([]string, 0, limit)
	for _, e := range order[:limit] {
		keywords = append(keywords, e.word)
	}
	return keywords
}

// deriveThemes собирает темы: сначала ключевые слова, совпавшие с лексиконом
// жанра, затем остальные ключевые слова до трех штук.
func (a *Analyzer) deriveThemes(genre models.Genre, keywords []string) []string {
	genreWords := make(map[string]struct{})
	for _, lex := range genreLexicons {
		if lex.genre != genre {
			continue
		}
		for _, w := range lex.words {
			genreWords[w] = struct{}{}
		}
	}

	themes := make([]string, 0, 3)
	for _, kw := range keywords {
		if len(themes) >= 3 {
			break
		}
		if _, ok := genreWords[kw]; ok {
			themes = append(themes, kw)
		}
	}
	for _, kw := range keywords {
		if len(themes) >= 3 {
			break
		}
		if !contains(themes, kw) {
			themes = append(themes, kw)
		}
	}
	return themes
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// tokenize разбивает текст на слова в нижнем регистре, отбрасывая пунктуацию.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
