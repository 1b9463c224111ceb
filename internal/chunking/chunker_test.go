package chunking

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/errs"
)

func TestEstimateTokenizer(t *testing.T) {
	tok := EstimateTokenizer{}
	assert.Equal(t, 0, tok.Count(""))
	assert.Equal(t, 1, tok.Count("a"))
	assert.Equal(t, 1, tok.Count("abcd"))
	assert.Equal(t, 2, tok.Count("abcde"))
	assert.Equal(t, 1, tok.Count("日本語"), "counts runes, not bytes")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, 400)
	assert.Error(t, err)

	_, err = New(EstimateTokenizer{}, 4)
	assert.Error(t, err)

	c, err := New(EstimateTokenizer{}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTokens, c.MaxTokens())
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	c, err := New(EstimateTokenizer{}, 400)
	require.NoError(t, err)

	chunks, err := c.Split("k", "Title: Company X acquired\nContent: Company Y bought Company X.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, "k", chunks[0].ArticleKey)
	assert.Equal(t, ChunkID("k", 0, chunks[0].Text), chunks[0].ID)
}

func TestSplit_LongTextRespectsBound(t *testing.T) {
	c, err := New(EstimateTokenizer{}, 16)
	require.NoError(t, err)

	text := strings.Repeat("markets rallied on strong earnings ", 40)
	chunks, err := c.Split("k", text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		assert.LessOrEqual(t, ch.TokenCount, 16)
		assert.Positive(t, ch.TokenCount)
	}
}

func TestSplit_OversizedWord(t *testing.T) {
	c, err := New(EstimateTokenizer{}, 8)
	require.NoError(t, err)

	word := strings.Repeat("x", 100)
	chunks, err := c.Split("k", word)
	require.NoError(t, err)

	var rebuilt strings.Builder
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 8)
		rebuilt.WriteString(ch.Text)
	}
	assert.Equal(t, word, rebuilt.String())
}

func TestSplit_EmptyTextIsDocumentError(t *testing.T) {
	c, err := New(EstimateTokenizer{}, 400)
	require.NoError(t, err)

	_, err = c.Split("k", "  \n ")
	assert.True(t, errors.Is(err, errs.ErrDocumentProcessing))
}

func TestArticle_TagsTitleAndURL(t *testing.T) {
	c, err := New(EstimateTokenizer{}, 400)
	require.NoError(t, err)

	rec, ok := corpus.Normalize(corpus.RawArticle{Title: "Company X acquired", URL: "https://e/x", Content: "Deal."})
	require.True(t, ok)

	chunks, err := c.Article(rec, corpus.KeyTitleURL)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Company X acquired", chunks[0].Title)
	assert.Equal(t, "https://e/x", chunks[0].URL)
	assert.Equal(t, rec.Key(corpus.KeyTitleURL), chunks[0].ArticleKey)
	assert.Contains(t, chunks[0].Text, "Content: Deal.")
}

func TestChunkID_Distinct(t *testing.T) {
	assert.NotEqual(t, ChunkID("k", 0, "a"), ChunkID("k", 1, "a"))
	assert.NotEqual(t, ChunkID("k", 0, "a"), ChunkID("j", 0, "a"))
	assert.Equal(t, ChunkID("k", 0, "a"), ChunkID("k", 0, "a"))
}

func TestSplit_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxTokens := rapid.IntRange(minMaxTokens, 64).Draw(t, "max")
		words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,20}`), 1, 300).Draw(t, "words")
		seps := rapid.SliceOfN(rapid.SampledFrom([]string{" ", " ", " ", "\n", "\n\n"}), len(words), len(words)).Draw(t, "seps")

		var b strings.Builder
		for i, w := range words {
			if i > 0 {
				b.WriteString(seps[i])
			}
			b.WriteString(w)
		}
		text := b.String()

		c, err := New(EstimateTokenizer{}, maxTokens)
		if err != nil {
			t.Fatal(err)
		}
		chunks, err := c.Split("key", text)
		if err != nil {
			t.Fatal(err)
		}

		var rebuilt []string
		for i, ch := range chunks {
			if ch.TokenCount <= 0 || ch.TokenCount > maxTokens {
				t.Fatalf("chunk %d has %d tokens, bound %d", i, ch.TokenCount, maxTokens)
			}
			if ch.TokenCount != c.Tokenizer().Count(ch.Text) {
				t.Fatalf("chunk %d token count is stale", i)
			}
			if ch.Ordinal != i {
				t.Fatalf("chunk %d has ordinal %d", i, ch.Ordinal)
			}
			rebuilt = append(rebuilt, strings.Fields(ch.Text)...)
		}
		if strings.Join(rebuilt, " ") != strings.Join(strings.Fields(text), " ") {
			t.Fatalf("chunks do not preserve the word sequence")
		}
	})
}
