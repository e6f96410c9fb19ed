package generator

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const turing = "Alan Turing studied computers. Computers changed science. Alan Turing inspired science and computers."

func names(n *domain.Node) []string {
	var out []string
	for _, c := range n.Children {
		out = append(out, c.Name)
	}
	return out
}

func TestKeywords_NamesOutrankWords(t *testing.T) {
	root, err := NewKeywords().Generate(context.Background(), []string{turing})
	require.NoError(t, err)
	require.NotNil(t, root)

	assert.Equal(t, "Alan Turing", root.Name)
	assert.Equal(t, []string{"computer", "science"}, names(root))

	computer := root.Children[0]
	assert.Equal(t, "Importance: 6", computer.Attributes[domain.AttrNote])
	assert.Equal(t, "6", computer.Attributes[domain.AttrImportance])
	assert.Equal(t, "4", root.Children[1].Attributes[domain.AttrImportance])
	assert.Empty(t, computer.Children)
}

func TestKeywords_JoinsHistory(t *testing.T) {
	history := strings.SplitAfter(turing, ". ")
	require.Len(t, history, 3)
	for i := range history {
		history[i] = strings.TrimSpace(history[i])
	}

	root, err := NewKeywords().Generate(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "Alan Turing", root.Name)
	assert.Equal(t, []string{"computer", "science"}, names(root))
}

func TestKeywords_MainTopicFallsBackToFirstSentence(t *testing.T) {
	text := "the cat sat on the mat. dogs love dogs and dogs love bones."
	root, err := NewKeywords().Generate(context.Background(), []string{text})
	require.NoError(t, err)

	// "dog" scores highest but never appears in the first sentence.
	assert.Equal(t, "cat", root.Name)
	require.NotEmpty(t, root.Children)
	assert.Equal(t, "dog", root.Children[0].Name)
	assert.Equal(t, "6", root.Children[0].Attributes[domain.AttrImportance])
	assert.NotContains(t, names(root), "cat")
}

func TestKeywords_MainTopicFallsBackToText(t *testing.T) {
	root, err := NewKeywords().Generate(context.Background(), []string{"and the of it is"})
	require.NoError(t, err)
	assert.Equal(t, "and the of it is", root.Name)
	assert.Empty(t, root.Children)
}

func TestKeywords_RootNote(t *testing.T) {
	root, err := NewKeywords().Generate(context.Background(), []string{turing})
	require.NoError(t, err)
	note, _ := root.Note()
	assert.Equal(t, turing[:100]+"...", note)

	short := "Graphs need layout."
	root, err = NewKeywords().Generate(context.Background(), []string{short})
	require.NoError(t, err)
	note, _ = root.Note()
	assert.Equal(t, short, note)
}

func TestKeywords_MaxTopics(t *testing.T) {
	text := "apples bananas cherries dates figs grapes lemons mangos apples bananas"
	root, err := NewKeywords(WithMaxTopics(3)).Generate(context.Background(), []string{text})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(root.Children), 3)

	root, err = NewKeywords().Generate(context.Background(), []string{text})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(root.Children), DefaultMaxTopics)
}

func TestKeywords_TruncatesInput(t *testing.T) {
	text := "Rivers carry water. " + strings.Repeat("mountains ", 50)
	root, err := NewKeywords(WithMaxInput(20)).Generate(context.Background(), []string{text})
	require.NoError(t, err)

	note, _ := root.Note()
	assert.LessOrEqual(t, utf8.RuneCountInString(note), 20)
	assert.NotContains(t, names(root), "mountain")
}

func TestKeywords_StopWords(t *testing.T) {
	root, err := NewKeywords(WithStopWords("Science")).Generate(context.Background(), []string{turing})
	require.NoError(t, err)
	assert.Equal(t, []string{"computer"}, names(root))
}

func TestKeywords_BlankInput(t *testing.T) {
	root, err := NewKeywords().Generate(context.Background(), []string{"  ", "\n"})
	require.NoError(t, err)
	assert.Nil(t, root)

	root, err = NewKeywords().Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, root)

	// Control characters are stripped before the blank check.
	root, err = NewKeywords().Generate(context.Background(), []string{"\x00\x07", "\x1b \x7f"})
	require.NoError(t, err)
	assert.Nil(t, root)
}

func TestKeywords_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewKeywords().Generate(ctx, []string{turing})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLemmatize(t *testing.T) {
	tests := map[string]string{
		"libraries": "library",
		"classes":   "class",
		"boxes":     "box",
		"branches":  "branch",
		"nodes":     "node",
		"status":    "status",
		"analysis":  "analysis",
		"glass":     "glass",
		"map":       "map",
	}
	for in, want := range tests {
		assert.Equal(t, want, lemmatize(in), in)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two!  Three?\n\nFour")
	assert.Equal(t, []string{"One.", "Two!", "Three?", "Four"}, got)
}

func TestSanitize(t *testing.T) {
	out, truncated := Sanitize("héllo\x00 world", 0)
	assert.False(t, truncated)
	assert.Equal(t, "héllo world", out)

	out, truncated = Sanitize("héllo world", 3)
	assert.True(t, truncated)
	assert.Equal(t, "hél", out)

	out, _ = Sanitize("a\tb\nc", 0)
	assert.Equal(t, "a\tb\nc", out)
}
