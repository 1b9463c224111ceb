package retrieval

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/chunking"
	"github.com/fyrsmithlabs/newsrag/internal/embeddings"
	"github.com/fyrsmithlabs/newsrag/internal/index"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/newsrag/internal/retrieval"

	// DefaultTopN is how many hits each index contributes before fusion.
	DefaultTopN = 20
)

// Candidate is one retrieved chunk with its fused score.
type Candidate struct {
	Chunk       chunking.Chunk `json:"chunk"`
	Score       float64        `json:"score"`
	LexicalRank int            `json:"lexical_rank,omitempty"`
	VectorRank  int            `json:"vector_rank,omitempty"`
}

// Snapshots provides the currently published index snapshot.
type Snapshots interface {
	Current() *index.Snapshot
}

// Retriever runs hybrid retrieval against a single snapshot per query.
type Retriever struct {
	snapshots Snapshots
	embedder  embeddings.Embedder
	topN      int
	constant  int
	logger    *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopN sets how many hits each index contributes.
func WithTopN(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.topN = n
		}
	}
}

// WithRRFConstant sets the fusion rank offset.
func WithRRFConstant(c int) Option {
	return func(r *Retriever) {
		if c > 0 {
			r.constant = c
		}
	}
}

// NewRetriever creates a retriever. The embedder must be the one the index
// was built with.
func NewRetriever(snapshots Snapshots, embedder embeddings.Embedder, logger *zap.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retriever{
		snapshots: snapshots,
		embedder:  embedder,
		topN:      DefaultTopN,
		constant:  DefaultRRFConstant,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k distinct chunks for query, best first.
//
// Both lists come from the same snapshot, so a concurrent index update never
// mixes versions within one query. Before the first snapshot is published,
// or for a blank query, the result is empty. A failed query embedding
// degrades to lexical-only retrieval.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Candidate, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "retrieval.retrieve")
	defer span.End()

	snap := r.snapshots.Current()
	query = strings.TrimSpace(query)
	if snap == nil || query == "" || k <= 0 {
		return nil, nil
	}
	span.SetAttributes(
		attribute.Int64("index.version", int64(snap.Version())),
		attribute.Int("retrieval.k", k),
	)

	n := r.topN
	if n < k {
		n = k
	}

	lexical := snap.Lexical(query, n)

	var vector []index.Hit
	qv, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("query embedding failed, using lexical results only", zap.Error(err))
		span.RecordError(err)
	} else {
		vector, err = snap.Vector(ctx, qv, n)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("vector search failed, using lexical results only", zap.Error(err))
			span.RecordError(err)
			vector = nil
		}
	}

	fused := Fuse(lexical, vector, k, r.constant)
	out := make([]Candidate, 0, len(fused))
	for _, f := range fused {
		c, ok := snap.Chunk(f.ID)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Chunk:       c,
			Score:       f.Score,
			LexicalRank: f.LexicalRank,
			VectorRank:  f.VectorRank,
		})
	}

	span.SetAttributes(
		attribute.Int("retrieval.lexical", len(lexical)),
		attribute.Int("retrieval.vector", len(vector)),
		attribute.Int("retrieval.results", len(out)),
	)
	r.logger.Debug("retrieved candidates",
		zap.Uint64("version", snap.Version()),
		zap.Int("lexical", len(lexical)),
		zap.Int("vector", len(vector)),
		zap.Int("results", len(out)))
	return out, nil
}
