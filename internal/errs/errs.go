// Package errs defines the error taxonomy shared by newsrag components.
//
// Every failure that crosses a component boundary is wrapped in an *Error
// carrying one of four kinds. Callers branch on the kind with errors.Is
// against the exported sentinels:
//
//	if errors.Is(err, errs.ErrGeneration) {
//		// surface to this request only
//	}
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindUpstreamFetch is a non-success response from an external HTTP source.
	KindUpstreamFetch Kind = "upstream_fetch"
	// KindDocumentProcessing is a parse or embedding failure for one document.
	KindDocumentProcessing Kind = "document_processing"
	// KindGeneration is an LLM call failure.
	KindGeneration Kind = "generation"
	// KindConfiguration is missing or invalid configuration or credentials.
	KindConfiguration Kind = "configuration"
)

// Sentinels for errors.Is matching.
var (
	ErrUpstreamFetch      = &Error{Kind: KindUpstreamFetch}
	ErrDocumentProcessing = &Error{Kind: KindDocumentProcessing}
	ErrGeneration         = &Error{Kind: KindGeneration}
	ErrConfiguration      = &Error{Kind: KindConfiguration}
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New wraps err with kind and operation name.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Upstream wraps err as an upstream fetch failure.
func Upstream(op string, err error) error { return New(KindUpstreamFetch, op, err) }

// Document wraps err as a per-document processing failure.
func Document(op string, err error) error { return New(KindDocumentProcessing, op, err) }

// Generation wraps err as an LLM failure.
func Generation(op string, err error) error { return New(KindGeneration, op, err) }

// Configuration wraps err as a configuration failure.
func Configuration(op string, err error) error { return New(KindConfiguration, op, err) }

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
