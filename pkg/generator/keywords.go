package generator

import (
	"context"
	_ "embed"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Topic weights: a run of capitalized words (a name) counts more than a
// common word.
const (
	NameWeight = 3
	WordWeight = 2
)

// DefaultMaxTopics bounds the number of branches under the root.
const DefaultMaxTopics = 5

// rootNoteLength is how much of the input is kept as the root's note.
const rootNoteLength = 100

//go:embed stopwords.txt
var stopwordList string

var defaultStopWords = func() map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(stopwordList) {
		words[w] = true
	}
	return words
}()

var (
	sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)|\n{2,}`)
	wordPattern = regexp.MustCompile(`\p{L}[\p{L}\p{N}'’-]*`)
)

// Keywords implements ports.Generator with frequency-based topic extraction.
type Keywords struct {
	maxTopics int
	maxInput  int
	stopWords map[string]bool
	logger    *slog.Logger
}

var _ ports.Generator = (*Keywords)(nil)

// Option configures Keywords.
type Option func(*Keywords)

// WithMaxTopics sets the maximum number of branches.
func WithMaxTopics(n int) Option {
	return func(k *Keywords) {
		if n > 0 {
			k.maxTopics = n
		}
	}
}

// WithMaxInput sets how many characters of input are read.
func WithMaxInput(n int) Option {
	return func(k *Keywords) {
		if n > 0 {
			k.maxInput = n
		}
	}
}

// WithStopWords adds words that never become topics.
func WithStopWords(words ...string) Option {
	return func(k *Keywords) {
		merged := make(map[string]bool, len(k.stopWords)+len(words))
		for w := range k.stopWords {
			merged[w] = true
		}
		for _, w := range words {
			merged[strings.ToLower(w)] = true
		}
		k.stopWords = merged
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keywords) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// NewKeywords creates the extractor.
func NewKeywords(opts ...Option) *Keywords {
	k := &Keywords{
		maxTopics: DefaultMaxTopics,
		maxInput:  DefaultMaxInput,
		stopWords: defaultStopWords,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Generate joins history into one text and builds a root named after the
// main topic with up to maxTopics branches. Blank input returns nil.
func (k *Keywords) Generate(ctx context.Context, history []string) (*domain.Node, error) {
	text := strings.TrimSpace(strings.Join(history, " "))
	if text == "" {
		return nil, nil
	}
	text, truncated := Sanitize(text, k.maxInput)
	if truncated {
		k.logger.Warn("generator: input truncated", "max_chars", k.maxInput)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sentences := splitSentences(text)
	scores := k.score(sentences)
	main := k.mainTopic(scores, sentences, text)

	root := domain.NewNode(main)
	root.SetNote(excerpt(text, rootNoteLength))

	for _, t := range scores.ranked(k.maxTopics) {
		if t.name == main {
			continue
		}
		branch := domain.NewNode(t.name)
		branch.Attributes = map[string]string{
			domain.AttrNote:       "Importance: " + strconv.Itoa(t.score),
			domain.AttrImportance: strconv.Itoa(t.score),
		}
		root.Children = append(root.Children, branch)
	}

	k.logger.Debug("generator: map generated", "topic", main, "branches", len(root.Children), "candidates", len(scores.byName))
	return root, nil
}

type topic struct {
	name  string
	score int
	first int // order of first appearance, for stable ties
}

type topicScores struct {
	byName map[string]*topic
	// firstSentence holds the surface forms of candidates found in the
	// first sentence, in order.
	firstSentence []string
}

func (s *topicScores) add(name, surface string, weight, sentence int) {
	t, ok := s.byName[name]
	if !ok {
		t = &topic{name: name, first: len(s.byName)}
		s.byName[name] = t
	}
	t.score += weight
	if sentence == 0 {
		s.firstSentence = append(s.firstSentence, surface)
	}
}

// ranked returns the n best topics, highest score first.
func (s *topicScores) ranked(n int) []topic {
	all := make([]topic, 0, len(s.byName))
	for _, t := range s.byName {
		all = append(all, *t)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].first < all[j].first
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func (k *Keywords) score(sentences []string) *topicScores {
	scores := &topicScores{byName: make(map[string]*topic)}
	for si, sentence := range sentences {
		words := wordPattern.FindAllString(sentence, -1)
		for i := 0; i < len(words); {
			if isCapitalized(words[i]) {
				j := i
				for j < len(words) && isCapitalized(words[j]) {
					j++
				}
				run := k.trimStopWords(words[i:j])
				// A lone capitalized word opening a sentence is not
				// necessarily a name.
				if len(run) > 1 || (len(run) == 1 && i > 0) {
					name := strings.Join(run, " ")
					scores.add(name, name, NameWeight, si)
					i = j
					continue
				}
				if len(run) == 0 {
					i = j
					continue
				}
			}

			w := strings.ToLower(words[i])
			if k.isCandidateWord(w) {
				scores.add(lemmatize(w), words[i], WordWeight, si)
			}
			i++
		}
	}
	return scores
}

func (k *Keywords) mainTopic(scores *topicScores, sentences []string, text string) string {
	first := ""
	if len(sentences) > 0 {
		first = strings.ToLower(sentences[0])
	}
	if best := scores.ranked(1); len(best) == 1 && strings.Contains(first, strings.ToLower(best[0].name)) {
		return best[0].name
	}
	if len(scores.firstSentence) > 0 {
		return scores.firstSentence[0]
	}
	return strings.TrimSpace(truncateRunes(text, 50))
}

func (k *Keywords) trimStopWords(run []string) []string {
	for len(run) > 0 && k.stopWords[strings.ToLower(run[0])] {
		run = run[1:]
	}
	for len(run) > 0 && k.stopWords[strings.ToLower(run[len(run)-1])] {
		run = run[:len(run)-1]
	}
	return run
}

// isCandidateWord filters function words and the most common verb and adverb
// forms.
func (k *Keywords) isCandidateWord(w string) bool {
	if k.stopWords[w] || utf8.RuneCountInString(w) < 3 {
		return false
	}
	if strings.HasSuffix(w, "ly") || (strings.HasSuffix(w, "ed") && len(w) > 4) {
		return false
	}
	return true
}

func isCapitalized(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

// lemmatize reduces common English plurals to their singular.
func lemmatize(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return strings.TrimSuffix(w, "ies") + "y"
	case strings.HasSuffix(w, "sses"):
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "xes"), strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"):
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "s") && len(w) > 3 &&
		!strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		return strings.TrimSuffix(w, "s")
	}
	return w
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func excerpt(text string, n int) string {
	if utf8.RuneCountInString(text) > n {
		return truncateRunes(text, n) + "..."
	}
	return text
}
