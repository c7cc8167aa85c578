package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagPOS(t *testing.T) {
	t.Parallel()

	l := NewLocal(DefaultLocalConfig())
	tags, err := l.TagPOS(context.Background(), [][]string{{"quickly", " ", "running", ",", "42", "house"}}, "en")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{POSAdv, POSSpace, POSVerb, POSPunct, POSNum, POSNoun}}, tags)
}

func TestStopwordIdentifier(t *testing.T) {
	t.Parallel()

	id := NewStopwordIdentifier([]string{"en", "fr"})
	assert.Equal(t, []string{"en", "fr"}, id.Languages())

	scores := id.IdentifyLanguage("this is the thing that I want to have for the weekend")
	require.NotEmpty(t, scores)
	assert.Equal(t, "en", scores[0].Language)
	assert.Greater(t, scores[0].Confidence, 0.3)

	assert.Empty(t, id.IdentifyLanguage("?!"))
	assert.Empty(t, id.IdentifyLanguage(""))
}

func TestNgramJunkGenerator(t *testing.T) {
	t.Parallel()

	vocab := []string{"book", "flight", "paris", "london", "tomorrow", "please", " ", ","}
	gen := NgramJunkGenerator{}

	a := gen.GenerateJunkWords(vocab, "en", 3)
	b := gen.GenerateJunkWords(vocab, "en", 3)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)

	known := map[string]bool{}
	for _, w := range vocab {
		known[w] = true
	}
	for _, w := range a {
		assert.False(t, known[w], "junk word %q must not be a vocabulary word", w)
		assert.GreaterOrEqual(t, len([]rune(w)), junkGram+1)
	}

	assert.Nil(t, gen.GenerateJunkWords(nil, "en", 1))
	assert.Nil(t, gen.GenerateJunkWords([]string{"a", " "}, "en", 1))
}

func TestRegexSystemExtractor(t *testing.T) {
	t.Parallel()

	text := "send 1,200 dollars and 15% tip to bob@example.com or see https://example.com/x"
	got, err := RegexSystemExtractor{}.ExtractSystemEntities(context.Background(), text, "en")
	require.NoError(t, err)

	byType := map[string]SystemEntity{}
	for _, e := range got {
		byType[e.Type] = e
		assert.Equal(t, e.Source, text[e.Start:e.End])
	}

	require.Contains(t, byType, "system.number")
	assert.Equal(t, "1200", byType["system.number"].Value)
	require.Contains(t, byType, "system.percent")
	assert.Equal(t, "15", byType["system.percent"].Value)
	assert.Equal(t, "%", byType["system.percent"].Unit)
	require.Contains(t, byType, "system.email")
	assert.Equal(t, "bob@example.com", byType["system.email"].Value)
	require.Contains(t, byType, "system.url")

	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].End, got[i].Start)
	}
}
