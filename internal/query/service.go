// Package query answers a question end to end: hybrid retrieval, grounded
// generation and, when the corpus has nothing, web verification.
package query

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/agent"
	"github.com/fyrsmithlabs/newsrag/internal/answer"
	"github.com/fyrsmithlabs/newsrag/internal/retrieval"
)

// DefaultTopK is how many fused chunks reach the prompt.
const DefaultTopK = 6

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// Outcomes reported in Response.Outcome.
const (
	OutcomeAnswered      = "answered"
	OutcomeNoInformation = "no_information"
	OutcomeFailed        = "failed"
	OutcomeVerified      = "verified"
	OutcomeNoResults     = "no_results"
	OutcomeNoContent     = "no_content"
)

// Retriever returns ranked candidates for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.Candidate, error)
}

// Answerer generates a grounded answer from candidates.
type Answerer interface {
	Answer(ctx context.Context, query string, candidates []retrieval.Candidate) answer.Result
}

// Verifier checks a question against the web.
type Verifier interface {
	Verify(ctx context.Context, query string) agent.FallbackResult
}

// Response is what a client receives for one question.
type Response struct {
	Response string `json:"response"`
	// Source is the page a fallback verdict was based on.
	Source string `json:"source,omitempty"`
	// Sources are the articles a grounded answer was built from.
	Sources []string `json:"sources,omitempty"`
	Outcome string   `json:"outcome"`
	Cached  bool     `json:"cached,omitempty"`
}

// Service runs the question pipeline.
type Service struct {
	retriever Retriever
	answerer  Answerer
	verifier  Verifier
	topK      int
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithVerifier enables escalation to the web when the corpus has no answer.
func WithVerifier(v Verifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewService creates a service.
func NewService(retriever Retriever, answerer Answerer, logger *zap.Logger, opts ...Option) (*Service, error) {
	if retriever == nil || answerer == nil {
		return nil, errors.New("query: retriever and answerer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{retriever: retriever, answerer: answerer, topK: DefaultTopK, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FallbackEnabled reports whether the service escalates to the web.
func (s *Service) FallbackEnabled() bool { return s.verifier != nil }

// Ask answers question from the corpus. A NoInformation result escalates to
// the verifier when one is configured; otherwise the response is
// answer.NoInformationText.
//
// The returned error is non-nil only when the response could not be
// produced: a blank question, a cancelled request, or a generation or
// upstream failure. The response then still carries the rendered failure.
func (s *Service) Ask(ctx context.Context, question string) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{Outcome: OutcomeFailed, Response: ErrEmptyQuestion.Error()}, ErrEmptyQuestion
	}

	candidates, err := s.retriever.Retrieve(ctx, question, s.topK)
	if err != nil {
		return Response{Outcome: OutcomeFailed, Response: err.Error()}, err
	}

	res := s.answerer.Answer(ctx, question, candidates)
	switch res.Outcome {
	case answer.OutcomeAnswered:
		return Response{
			Response: res.Text(),
			Sources:  sourceURLs(candidates),
			Outcome:  OutcomeAnswered,
			Cached:   res.Cached,
		}, nil
	case answer.OutcomeFailed:
		return Response{Response: res.Text(), Outcome: OutcomeFailed}, res.Err
	}

	if s.verifier == nil {
		return Response{Response: answer.NoInformationText, Outcome: OutcomeNoInformation}, nil
	}

	s.logger.Info("no answer in corpus, verifying on the web", zap.String("question", question))
	return s.Verify(ctx, question)
}

// Verify runs the web verifier directly.
func (s *Service) Verify(ctx context.Context, question string) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{Outcome: OutcomeFailed, Response: ErrEmptyQuestion.Error()}, ErrEmptyQuestion
	}
	if s.verifier == nil {
		return Response{Response: agent.NoResultsText, Outcome: OutcomeNoResults}, nil
	}

	fr := s.verifier.Verify(ctx, question)
	resp := Response{Response: fr.Text(), Source: fr.SourceURL}
	switch fr.Outcome {
	case agent.OutcomeSummarized:
		resp.Outcome = OutcomeVerified
	case agent.OutcomeNoResults:
		resp.Outcome = OutcomeNoResults
	case agent.OutcomeNoContent:
		resp.Outcome = OutcomeNoContent
	default:
		resp.Outcome = OutcomeFailed
		return resp, fr.Err
	}
	return resp, nil
}

// sourceURLs lists the distinct article URLs of candidates in rank order.
func sourceURLs(candidates []retrieval.Candidate) []string {
	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, c := range candidates {
		u := c.Chunk.URL
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
