package answer

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/errs"
	"github.com/fyrsmithlabs/newsrag/internal/metrics"
	"github.com/fyrsmithlabs/newsrag/internal/retrieval"
)

const instrumentationName = "github.com/fyrsmithlabs/newsrag/internal/answer"

// Generator produces grounded answers through a cache.
//
// Concurrent misses for the same fingerprint may each call the model; the
// results converge since generation depends only on (model, prompt).
type Generator struct {
	model   Model
	cache   Cache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithCache sets the answer cache. Without one every call reaches the model.
func WithCache(c Cache) GeneratorOption {
	return func(g *Generator) { g.cache = c }
}

// WithMetrics sets the collectors for outcomes and cache lookups.
func WithMetrics(m *metrics.Metrics) GeneratorOption {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator creates a generator over model.
func NewGenerator(model Model, logger *zap.Logger, opts ...GeneratorOption) (*Generator, error) {
	if model == nil {
		return nil, errors.New("answer: model cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{model: model, logger: logger, metrics: metrics.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Model returns the model answers are generated with.
func (g *Generator) Model() string { return g.model.Name() }

// Answer generates an answer to query from candidates, in ranked order.
//
// No candidates yields NoInformation without a model call. A model reply of
// exactly NoInformationText also yields NoInformation. A model failure
// yields Failed with kind errs.KindGeneration and affects only this call.
func (g *Generator) Answer(ctx context.Context, query string, candidates []retrieval.Candidate) Result {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "answer.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", g.model.Name()),
		attribute.Int("answer.candidates", len(candidates)),
	)

	res := g.answer(ctx, query, candidates)

	span.SetAttributes(
		attribute.String("answer.outcome", res.Outcome.String()),
		attribute.Bool("answer.cached", res.Cached),
	)
	if res.Outcome == OutcomeFailed {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	g.metrics.AnswerOutcomesTotal.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func (g *Generator) answer(ctx context.Context, query string, candidates []retrieval.Candidate) Result {
	if len(candidates) == 0 {
		return NoInformation()
	}

	prompt := BuildPrompt(query, candidates)
	key := Fingerprint(g.model.Name(), prompt)
	log := g.logger.With(zap.String("fingerprint", key[:16]))

	if g.cache != nil {
		text, ok, err := g.cache.Get(ctx, key)
		switch {
		case err != nil:
			g.metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
			log.Warn("answer cache lookup failed", zap.Error(err))
		case ok:
			g.metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			log.Debug("answer cache hit")
			res := classify(text)
			res.Cached = true
			return res
		default:
			g.metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	text, err := g.model.Generate(ctx, "", prompt)
	if err != nil {
		log.Error("answer generation failed", zap.Error(err))
		return Failed(errs.Generation("answer.generate", err))
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, text); err != nil {
			log.Warn("failed to cache answer", zap.Error(err))
		}
	}
	return classify(text)
}

// classify maps the model's no-information reply to NoInformation.
func classify(text string) Result {
	text = strings.TrimSpace(text)
	if text == NoInformationText {
		return NoInformation()
	}
	return Answered(text)
}
