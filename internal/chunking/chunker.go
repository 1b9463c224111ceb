package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/errs"
)

// DefaultMaxTokens bounds every chunk.
const DefaultMaxTokens = 400

// minMaxTokens keeps a single rune within the bound for any encoding.
const minMaxTokens = 8

// Chunk is a token-bounded piece of one article's derived text.
type Chunk struct {
	ID         string `json:"id"`
	ArticleKey string `json:"article_key"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Ordinal    int    `json:"ordinal"`
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`
}

// Chunker splits text on paragraph, line and word boundaries, packing pieces
// greedily up to the token bound.
type Chunker struct {
	tok      Tokenizer
	max      int
	splitter textsplitter.RecursiveCharacter
}

// New creates a chunker. maxTokens of zero means DefaultMaxTokens.
func New(tok Tokenizer, maxTokens int) (*Chunker, error) {
	if tok == nil {
		return nil, errors.New("chunking: tokenizer is required")
	}
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	if maxTokens < minMaxTokens {
		return nil, fmt.Errorf("chunking: max tokens must be at least %d, got %d", minMaxTokens, maxTokens)
	}
	return &Chunker{
		tok: tok,
		max: maxTokens,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(maxTokens),
			textsplitter.WithChunkOverlap(0),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
			textsplitter.WithLenFunc(tok.Count),
		),
	}, nil
}

// MaxTokens returns the bound.
func (c *Chunker) MaxTokens() int { return c.max }

// Tokenizer returns the tokenizer in use.
func (c *Chunker) Tokenizer() Tokenizer { return c.tok }

// Split chunks text for the article identified by key. Every returned chunk
// has 0 < TokenCount <= MaxTokens.
func (c *Chunker) Split(key, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.Document("chunking.split", fmt.Errorf("article %q has no text", key))
	}

	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, errs.Document("chunking.split", err)
	}

	var out []Chunk
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		for _, bounded := range c.bound(piece) {
			out = append(out, c.newChunk(key, len(out), bounded))
		}
	}
	if len(out) == 0 {
		return nil, errs.Document("chunking.split", fmt.Errorf("article %q produced no chunks", key))
	}
	return out, nil
}

// Article chunks a record's derived text and tags each chunk with the
// record's title and URL.
func (c *Chunker) Article(r corpus.ArticleRecord, policy corpus.KeyPolicy) ([]Chunk, error) {
	text := r.DerivedText
	if text == "" {
		text = corpus.DerivedTextOf(r)
	}
	chunks, err := c.Split(r.Key(policy), text)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Title = r.Title
		chunks[i].URL = r.URL
	}
	return chunks, nil
}

func (c *Chunker) newChunk(key string, ordinal int, text string) Chunk {
	return Chunk{
		ID:         ChunkID(key, ordinal, text),
		ArticleKey: key,
		Text:       text,
		TokenCount: c.tok.Count(text),
		Ordinal:    ordinal,
	}
}

// bound re-packs a piece the splitter left over the limit. Token counts are
// not additive across joins, so the splitter's own arithmetic is checked
// against the tokenizer here.
func (c *Chunker) bound(piece string) []string {
	if c.tok.Count(piece) <= c.max {
		return []string{piece}
	}

	var (
		out     []string
		current string
	)
	flush := func() {
		if current != "" {
			out = append(out, current)
			current = ""
		}
	}
	for _, word := range strings.Fields(piece) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if c.tok.Count(candidate) <= c.max {
			current = candidate
			continue
		}
		flush()
		if c.tok.Count(word) <= c.max {
			current = word
			continue
		}
		out = append(out, c.splitRunes(word)...)
	}
	flush()
	return out
}

// splitRunes cuts a single oversized word into the longest rune prefixes
// that fit.
func (c *Chunker) splitRunes(word string) []string {
	var out []string
	runes := []rune(word)
	for len(runes) > 0 {
		lo, hi := 1, len(runes)
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if c.tok.Count(string(runes[:mid])) <= c.max {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		for lo > 1 && c.tok.Count(string(runes[:lo])) > c.max {
			lo--
		}
		out = append(out, string(runes[:lo]))
		runes = runes[lo:]
	}
	return out
}

// ChunkID is the content hash of a chunk's key, ordinal and text.
func ChunkID(key string, ordinal int, text string) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(ordinal)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
