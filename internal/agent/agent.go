// Package agent verifies a question against the live web when the corpus
// has no answer: it searches, scrapes the first result and asks a model to
// summarize the page and judge whether the claim is authentic.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/answer"
	"github.com/fyrsmithlabs/newsrag/internal/errs"
	"github.com/fyrsmithlabs/newsrag/internal/metrics"
)

const instrumentationName = "github.com/fyrsmithlabs/newsrag/internal/agent"

// Terminal texts of the short-circuited stages.
const (
	NoResultsText = "No results found."
	NoContentText = "No content found."
)

// SystemInstruction is the fixed instruction of the summarize stage.
const SystemInstruction = "You are a news asistant. Tell me what is the correct answer to the query in the answer text and tell me if is authentic or fake"

// Outcome tags a FallbackResult.
type Outcome int

const (
	// OutcomeSummarized carries the model's summary and verdict.
	OutcomeSummarized Outcome = iota
	// OutcomeNoResults means the search returned no organic result or the
	// search API failed. Err carries the failure, if any.
	OutcomeNoResults
	// OutcomeNoContent means the result page could not be fetched or had
	// no body text.
	OutcomeNoContent
	// OutcomeFailed means summarization failed or the request was
	// cancelled.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSummarized:
		return "summarized"
	case OutcomeNoResults:
		return "no_results"
	case OutcomeNoContent:
		return "no_content"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FallbackResult is the outcome of one verification run.
type FallbackResult struct {
	Query       string
	SourceURL   string
	ScrapedText string
	Summary     string
	Outcome     Outcome
	Err         error
}

// Text renders the result for a client.
func (r FallbackResult) Text() string {
	switch r.Outcome {
	case OutcomeSummarized:
		return r.Summary
	case OutcomeNoResults:
		return NoResultsText
	case OutcomeNoContent:
		return NoContentText
	default:
		if r.Err != nil {
			return r.Err.Error()
		}
		return "verification failed"
	}
}

// Searcher returns the link of the first organic result for query, or ""
// when there is none.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// ErrNoContent is returned by a Scraper when the page has no usable text.
var ErrNoContent = errors.New("no content")

// Scraper returns the visible body text of the page at url.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// Agent runs search, scrape and summarize. Each stage short-circuits and
// none retries.
type Agent struct {
	searcher Searcher
	scraper  Scraper
	model    answer.Model
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures an Agent.
type Option func(*Agent)

// WithMetrics sets the fallback outcome counter.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// New creates an agent.
func New(searcher Searcher, scraper Scraper, model answer.Model, logger *zap.Logger, opts ...Option) (*Agent, error) {
	if searcher == nil || scraper == nil || model == nil {
		return nil, errors.New("agent: searcher, scraper and model are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{
		searcher: searcher,
		scraper:  scraper,
		model:    model,
		logger:   logger,
		metrics:  metrics.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Verify searches the web for query and summarizes the first result.
func (a *Agent) Verify(ctx context.Context, query string) FallbackResult {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "agent.verify")
	defer span.End()

	res := a.verify(ctx, strings.TrimSpace(query))

	span.SetAttributes(
		attribute.String("agent.outcome", res.Outcome.String()),
		attribute.String("agent.source_url", res.SourceURL),
	)
	if res.Outcome == OutcomeFailed {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	a.metrics.FallbackOutcomesTotal.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func (a *Agent) verify(ctx context.Context, query string) FallbackResult {
	res := FallbackResult{Query: query}
	log := a.logger.With(zap.String("query", query))

	link, err := a.search(ctx, query)
	if err != nil {
		res.Err = errs.Upstream("agent.search", err)
		if ctx.Err() != nil {
			res.Outcome = OutcomeFailed
			return res
		}
		log.Warn("web search failed", zap.Error(err))
		res.Outcome = OutcomeNoResults
		return res
	}
	if link == "" {
		log.Info("web search returned no results")
		res.Outcome = OutcomeNoResults
		return res
	}
	res.SourceURL = link

	text, err := a.scrape(ctx, link)
	switch {
	case errors.Is(err, ErrNoContent):
		log.Warn("no content scraped", zap.String("url", link), zap.Error(err))
		res.Outcome = OutcomeNoContent
		return res
	case err != nil:
		if ctx.Err() != nil {
			res.Outcome, res.Err = OutcomeFailed, errs.Upstream("agent.scrape", err)
			return res
		}
		log.Warn("scrape failed", zap.String("url", link), zap.Error(err))
		res.Outcome = OutcomeNoContent
		return res
	}
	res.ScrapedText = text

	summary, err := a.summarize(ctx, query, text)
	if err != nil {
		log.Error("summarize failed", zap.String("url", link), zap.Error(err))
		res.Outcome, res.Err = OutcomeFailed, errs.Generation("agent.summarize", err)
		return res
	}
	res.Summary = summary
	res.Outcome = OutcomeSummarized
	return res
}

func (a *Agent) search(ctx context.Context, query string) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "agent.search")
	defer span.End()
	link, err := a.searcher.Search(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return link, err
}

func (a *Agent) scrape(ctx context.Context, url string) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "agent.scrape")
	defer span.End()
	span.SetAttributes(attribute.String("http.url", url))
	text, err := a.scraper.Scrape(ctx, url)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Int("agent.scraped_chars", len(text)))
	return text, nil
}

func (a *Agent) summarize(ctx context.Context, query, text string) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "agent.summarize")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", a.model.Name()))
	summary, err := a.model.Generate(ctx, SystemInstruction, SummarizePrompt(query, text))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return summary, err
}

// SummarizePrompt is the summarize stage's prompt.
func SummarizePrompt(query, text string) string {
	return fmt.Sprintf("Summarize this article on the query - %s\nAnswer: %s", query, text)
}
