// Package index maintains the hybrid retrieval index: a BM25 lexical index
// and a vector index over the chunks of one corpus version, published as an
// immutable snapshot.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/chunking"
	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/embeddings"
	"github.com/fyrsmithlabs/newsrag/internal/errs"
	"github.com/fyrsmithlabs/newsrag/internal/metrics"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/newsrag/internal/index"

	// DefaultBatchSize is the number of chunk texts sent per embedding call.
	DefaultBatchSize = 32
)

// Store builds snapshots and publishes them atomically. Builds are
// serialized; readers never block.
type Store struct {
	chunker  *chunking.Chunker
	embedder embeddings.Provider
	backend  VectorBackend
	policy   corpus.KeyPolicy
	batch    int
	logger   *zap.Logger
	metrics  *metrics.Metrics

	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithVectorBackend sets the vector backend. Default is in-memory chromem.
func WithVectorBackend(b VectorBackend) Option {
	return func(s *Store) { s.backend = b }
}

// WithKeyPolicy sets the identity key used for chunk and document keys. It
// must match the corpus store's policy.
func WithKeyPolicy(p corpus.KeyPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithMetrics sets the collectors for snapshot gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates an empty store. Current returns nil until the first
// Index or Update.
func NewStore(chunker *chunking.Chunker, embedder embeddings.Provider, logger *zap.Logger, opts ...Option) (*Store, error) {
	if chunker == nil {
		return nil, errors.New("index: chunker cannot be nil")
	}
	if embedder == nil {
		return nil, errors.New("index: embedder cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		chunker:  chunker,
		embedder: embedder,
		policy:   corpus.KeyTitleURL,
		batch:    DefaultBatchSize,
		logger:   logger,
		metrics:  metrics.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backend == nil {
		s.backend = NewChromemBackend()
	}
	return s, nil
}

// Current returns the published snapshot, or nil before the first build.
// Callers should use one snapshot for a whole query.
func (s *Store) Current() *Snapshot { return s.current.Load() }

// Embedder returns the provider that embedded the snapshot's chunks. Query
// vectors must come from the same provider.
func (s *Store) Embedder() embeddings.Provider { return s.embedder }

// Index builds and publishes a snapshot of c from scratch, embedding every
// chunk. The first snapshot is version 1.
func (s *Store) Index(ctx context.Context, c corpus.Corpus) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.build(ctx, c, nil)
}

// Update builds and publishes the next snapshot version of c. Chunks whose
// ID appears in the current snapshot keep their embedding.
func (s *Store) Update(ctx context.Context, c corpus.Corpus) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.build(ctx, c, s.current.Load())
}

// Close releases the vector backend.
func (s *Store) Close() error { return s.backend.Close() }

// docEntry is one document during a build.
type docEntry struct {
	rec    corpus.ArticleRecord
	key    string
	chunks []chunking.Chunk
	vecs   [][]float32
	failed bool
}

// pending is one document whose chunks still need vectors.
type pending struct {
	doc     *docEntry
	missing []int
}

func (s *Store) build(ctx context.Context, c corpus.Corpus, prev *Snapshot) (*Snapshot, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "index.build")
	defer span.End()

	start := time.Now()
	version := uint64(1)
	if cur := s.current.Load(); cur != nil {
		version = cur.Version() + 1
	}
	span.SetAttributes(
		attribute.Int64("index.version", int64(version)),
		attribute.Int("index.records", len(c)),
	)
	log := s.logger.With(zap.Uint64("version", version))

	docs := make([]*docEntry, 0, len(c))
	seen := make(map[string]struct{})
	skipped, reused := 0, 0
	var work []pending

	for _, rec := range c {
		if err := ctx.Err(); err != nil {
			return nil, fail(span, err)
		}
		key := rec.Key(s.policy)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		chunks, err := s.chunker.Article(rec, s.policy)
		if err != nil {
			skipped++
			log.Warn("skipping document", zap.String("url", rec.URL), zap.Error(asDocumentError("index.chunk", err)))
			continue
		}

		d := &docEntry{rec: rec, key: key, chunks: chunks, vecs: make([][]float32, len(chunks))}
		var missing []int
		for i, ch := range chunks {
			if prev != nil {
				if v, ok := prev.embedding(ch.ID); ok {
					d.vecs[i] = v
					reused++
					continue
				}
			}
			missing = append(missing, i)
		}
		docs = append(docs, d)
		if len(missing) > 0 {
			work = append(work, pending{doc: d, missing: missing})
		}
	}

	// Embed in batches that span documents. A failed batch is retried one
	// document at a time so a bad document only takes itself down.
	for next := 0; next < len(work); {
		end, texts := next, 0
		for end < len(work) && (texts == 0 || texts+len(work[end].missing) <= s.batch) {
			texts += len(work[end].missing)
			end++
		}
		batch := work[next:end]
		next = end

		err := s.embedBatch(ctx, batch)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil, fail(span, ctx.Err())
		}

		for _, p := range batch {
			err := s.embedBatch(ctx, []pending{p})
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return nil, fail(span, ctx.Err())
			}
			p.doc.failed = true
			skipped++
			log.Warn("skipping document", zap.String("url", p.doc.rec.URL), zap.Error(asDocumentError("index.embed", err)))
		}
	}

	snap := &Snapshot{
		byID:     make(map[string]int),
		embedded: make(map[string][]float32),
	}
	var (
		ids     []string
		texts   []string
		vectors [][]float32
	)
	for _, d := range docs {
		if d.failed {
			continue
		}
		for i, ch := range d.chunks {
			if _, dup := snap.byID[ch.ID]; dup {
				continue
			}
			snap.byID[ch.ID] = len(snap.chunks)
			snap.chunks = append(snap.chunks, ch)
			snap.embedded[ch.ID] = d.vecs[i]
			ids = append(ids, ch.ID)
			texts = append(texts, ch.Text)
			vectors = append(vectors, d.vecs[i])
		}
		snap.documents = append(snap.documents, DocumentInfo{
			Key:         d.key,
			Title:       d.rec.Title,
			URL:         d.rec.URL,
			Source:      d.rec.Source,
			PublishedAt: d.rec.PublishedAt,
			Chunks:      len(d.chunks),
		})
	}

	snap.lexical = NewBM25(ids, texts)
	vi, err := s.backend.Build(ctx, version, snap.chunks, vectors)
	if err != nil {
		return nil, fail(span, fmt.Errorf("building vector index: %w", err))
	}
	snap.vectors = vi
	snap.stats = Stats{
		Version:   version,
		Documents: len(snap.documents),
		Chunks:    len(snap.chunks),
		Vectors:   vi.Len(),
		Skipped:   skipped,
		Reused:    reused,
		Model:     s.embedder.Model(),
		BuiltAt:   time.Now().UTC(),
	}

	s.current.Store(snap)

	s.metrics.IndexVersion.Set(float64(version))
	s.metrics.IndexChunks.Set(float64(len(snap.chunks)))
	s.metrics.IndexSkippedTotal.Add(float64(skipped))

	span.SetAttributes(
		attribute.Int("index.documents", snap.stats.Documents),
		attribute.Int("index.chunks", snap.stats.Chunks),
		attribute.Int("index.skipped", skipped),
		attribute.Int("index.reused", reused),
	)
	span.SetStatus(codes.Ok, "published")

	log.Info("index snapshot published",
		zap.Int("documents", snap.stats.Documents),
		zap.Int("chunks", snap.stats.Chunks),
		zap.Int("skipped", skipped),
		zap.Int("reused", reused),
		zap.Duration("duration", time.Since(start)))
	return snap, nil
}

// embedBatch embeds the missing chunks of every pending document in one
// call and writes the vectors back in place.
func (s *Store) embedBatch(ctx context.Context, batch []pending) error {
	var texts []string
	for _, p := range batch {
		for _, i := range p.missing {
			texts = append(texts, p.doc.chunks[i].Text)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	out, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return err
	}
	if len(out) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(out), len(texts))
	}
	dim := s.embedder.Dimension()
	for _, v := range out {
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("embedding has dimension %d, want %d", len(v), dim)
		}
	}

	n := 0
	for _, p := range batch {
		for _, i := range p.missing {
			p.doc.vecs[i] = out[n]
			n++
		}
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func asDocumentError(op string, err error) error {
	if errs.KindOf(err) == errs.KindDocumentProcessing {
		return err
	}
	return errs.Document(op, err)
}
