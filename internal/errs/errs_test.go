package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	cause := errors.New("status 500")
	err := fmt.Errorf("fetching page: %w", Upstream("newsapi.top_headlines", cause))

	assert.True(t, errors.Is(err, ErrUpstreamFetch))
	assert.False(t, errors.Is(err, ErrGeneration))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindUpstreamFetch, KindOf(err))
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"full", &Error{Kind: KindGeneration, Op: "llm.call", Err: errors.New("boom")}, "generation: llm.call: boom"},
		{"no op", &Error{Kind: KindGeneration, Err: errors.New("boom")}, "generation: boom"},
		{"op only", &Error{Kind: KindConfiguration, Op: "load"}, "configuration: load"},
		{"bare", &Error{Kind: KindDocumentProcessing}, "document_processing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
