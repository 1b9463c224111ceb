// Package answer turns retrieved chunks into a grounded answer: it builds
// the prompt, consults the answer cache and calls the language model.
package answer

import (
	"github.com/fyrsmithlabs/newsrag/internal/errs"
)

// NoInformationText is the rendered form of a NoInformation result, and
// the exact reply the model is told to give when the sources do not answer
// the question.
const NoInformationText = "No information found."

// Outcome tags a Result.
type Outcome int

const (
	// OutcomeAnswered carries a grounded answer.
	OutcomeAnswered Outcome = iota
	// OutcomeNoInformation means the sources do not answer the question.
	OutcomeNoInformation
	// OutcomeFailed means generation failed for this request.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeNoInformation:
		return "no_information"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is Answered(text), NoInformation or Failed(kind, err).
type Result struct {
	Outcome Outcome
	// Answer is set for OutcomeAnswered.
	Answer string
	// Err is set for OutcomeFailed.
	Err error
	// Cached reports an answer served from the cache.
	Cached bool
}

// Answered wraps a grounded answer.
func Answered(text string) Result { return Result{Outcome: OutcomeAnswered, Answer: text} }

// NoInformation is the terminal "not in the sources" state.
func NoInformation() Result { return Result{Outcome: OutcomeNoInformation} }

// Failed wraps a generation failure.
func Failed(err error) Result { return Result{Outcome: OutcomeFailed, Err: err} }

// Text renders the result for a client. NoInformation renders as
// NoInformationText; a failure renders as its error message.
func (r Result) Text() string {
	switch r.Outcome {
	case OutcomeAnswered:
		return r.Answer
	case OutcomeNoInformation:
		return NoInformationText
	default:
		if r.Err != nil {
			return r.Err.Error()
		}
		return "answer generation failed"
	}
}

// Kind returns the error kind of a failed result, or "".
func (r Result) Kind() errs.Kind {
	if r.Outcome != OutcomeFailed {
		return ""
	}
	if k := errs.KindOf(r.Err); k != "" {
		return k
	}
	return errs.KindGeneration
}
