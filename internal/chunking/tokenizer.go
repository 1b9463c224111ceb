// Package chunking splits article text into token-bounded chunks.
package chunking

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens.
type Tokenizer interface {
	Count(text string) int
	Name() string
}

// TiktokenTokenizer counts BPE tokens with tiktoken-go.
type TiktokenTokenizer struct {
	name string
	mu   sync.Mutex
	tke  *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads an encoding by name, or by model name when the
// encoding is unknown. The BPE ranks are fetched on first use and cached in
// TIKTOKEN_CACHE_DIR.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(encoding)
		if err != nil {
			return nil, fmt.Errorf("loading tiktoken encoding %q: %w", encoding, err)
		}
	}
	return &TiktokenTokenizer{name: encoding, tke: tke}, nil
}

// Count implements Tokenizer.
func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tke.Encode(text, nil, nil))
}

// Name implements Tokenizer.
func (t *TiktokenTokenizer) Name() string { return t.name }

// EstimateTokenizer approximates one token per four characters, rounding up.
type EstimateTokenizer struct{}

// Count implements Tokenizer.
func (EstimateTokenizer) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// Name implements Tokenizer.
func (EstimateTokenizer) Name() string { return "estimate" }

// NewTokenizer returns a tiktoken tokenizer, or the estimator when the
// encoding cannot be loaded (no network and no cache).
func NewTokenizer(encoding string, logger *zap.Logger) Tokenizer {
	tok, err := NewTiktokenTokenizer(encoding)
	if err != nil {
		if logger != nil {
			logger.Warn("tiktoken unavailable, estimating token counts", zap.Error(err))
		}
		return EstimateTokenizer{}
	}
	return tok
}
