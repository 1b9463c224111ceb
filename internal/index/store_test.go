package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsrag/internal/chunking"
	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/embeddings"
	"github.com/fyrsmithlabs/newsrag/internal/metrics"
)

// countingEmbedder wraps the hash embedder, counting embedded texts and
// failing any call that contains failOn.
type countingEmbedder struct {
	*embeddings.HashProvider

	mu     sync.Mutex
	texts  int
	calls  int
	failOn string
}

func newCountingEmbedder(t *testing.T) *countingEmbedder {
	t.Helper()
	h, err := embeddings.NewHashProvider(512)
	require.NoError(t, err)
	return &countingEmbedder{HashProvider: h}
}

func (e *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	failOn := e.failOn
	e.mu.Unlock()

	if failOn != "" {
		for _, text := range texts {
			if strings.Contains(text, failOn) {
				return nil, errors.New("model rejected input")
			}
		}
	}

	e.mu.Lock()
	e.texts += len(texts)
	e.mu.Unlock()
	return e.HashProvider.EmbedDocuments(ctx, texts)
}

func (e *countingEmbedder) embedded() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.texts
}

func article(title, url, content string) corpus.ArticleRecord {
	r, _ := corpus.Normalize(corpus.RawArticle{
		Title:      title,
		URL:        url,
		Content:    content,
		SourceName: "Wire",
	})
	return r
}

func testCorpus() corpus.Corpus {
	return corpus.Corpus{
		article("Central bank raises rates", "https://example.com/rates", "The central bank raised interest rates by half a point."),
		article("Cup final decided on penalties", "https://example.com/football", "The football final went to penalties after extra time."),
		article("Quantum chip unveiled", "https://example.com/quantum", "Researchers unveiled a quantum processor with new qubits."),
	}
}

func newTestStore(t *testing.T, emb embeddings.Provider, opts ...Option) *Store {
	t.Helper()
	chunker, err := chunking.New(chunking.EstimateTokenizer{}, 400)
	require.NoError(t, err)
	s, err := NewStore(chunker, emb, nil, opts...)
	require.NoError(t, err)
	return s
}

func TestNewStore_Validation(t *testing.T) {
	emb := newCountingEmbedder(t)
	chunker, err := chunking.New(chunking.EstimateTokenizer{}, 400)
	require.NoError(t, err)

	_, err = NewStore(nil, emb, nil)
	assert.Error(t, err)
	_, err = NewStore(chunker, nil, nil)
	assert.Error(t, err)
}

func TestStore_Index(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newCountingEmbedder(t))
	assert.Nil(t, s.Current())

	snap, err := s.Index(ctx, testCorpus())
	require.NoError(t, err)
	require.Same(t, snap, s.Current())

	stats := snap.Stats()
	assert.Equal(t, uint64(1), snap.Version())
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, stats.Vectors)
	assert.Zero(t, stats.Skipped)
	assert.Equal(t, "hash-512", stats.Model)

	docs := snap.Documents()
	require.Len(t, docs, 3)
	assert.Equal(t, "Central bank raises rates", docs[0].Title)
	assert.Equal(t, "https://example.com/rates", docs[0].URL)
	assert.Equal(t, 1, docs[0].Chunks)

	t.Run("lexical", func(t *testing.T) {
		hits := snap.Lexical("quantum qubits", 5)
		require.NotEmpty(t, hits)
		c, ok := snap.Chunk(hits[0].ID)
		require.True(t, ok)
		assert.Equal(t, "https://example.com/quantum", c.URL)
	})

	t.Run("vector", func(t *testing.T) {
		q, err := s.Embedder().EmbedQuery(ctx, "football penalties")
		require.NoError(t, err)
		hits, err := snap.Vector(ctx, q, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		c, ok := snap.Chunk(hits[0].ID)
		require.True(t, ok)
		assert.Equal(t, "https://example.com/football", c.URL)
	})

	t.Run("vector limit above size", func(t *testing.T) {
		q, err := s.Embedder().EmbedQuery(ctx, "bank")
		require.NoError(t, err)
		hits, err := snap.Vector(ctx, q, 50)
		require.NoError(t, err)
		assert.Len(t, hits, 3)
	})

	t.Run("zero query vector", func(t *testing.T) {
		hits, err := snap.Vector(ctx, make([]float32, 512), 3)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("every chunk is in both indexes", func(t *testing.T) {
		for _, c := range snap.Chunks() {
			_, ok := snap.embedding(c.ID)
			assert.True(t, ok)
		}
		assert.Equal(t, snap.lexical.Len(), snap.vectors.Len())
	})
}

func TestStore_UpdateReusesEmbeddings(t *testing.T) {
	ctx := context.Background()
	emb := newCountingEmbedder(t)
	s := newTestStore(t, emb)

	first, err := s.Index(ctx, testCorpus())
	require.NoError(t, err)
	require.Equal(t, 3, emb.embedded())

	next := append(testCorpus(), article("Storm hits coast", "https://example.com/storm", "A storm made landfall overnight."))
	second, err := s.Update(ctx, next)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), second.Version())
	assert.Equal(t, 4, second.Stats().Chunks)
	assert.Equal(t, 3, second.Stats().Reused)
	assert.Equal(t, 4, emb.embedded(), "only the new article is embedded")

	// The old snapshot is untouched.
	assert.Equal(t, uint64(1), first.Version())
	assert.Equal(t, 3, first.Stats().Chunks)
	assert.Empty(t, first.Lexical("storm", 5))
	assert.NotEmpty(t, second.Lexical("storm", 5))
	assert.Same(t, second, s.Current())
}

func TestStore_ConcurrentUpdatesAndReads(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newCountingEmbedder(t))

	small := testCorpus()
	large := append(testCorpus(), article("Storm hits coast", "https://example.com/storm", "A storm made landfall overnight."))
	_, err := s.Index(ctx, small)
	require.NoError(t, err)

	q, err := s.Embedder().EmbedQuery(ctx, "storm landfall")
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := s.Current()
				docs := snap.Stats().Documents
				// Each snapshot is entirely one corpus or the other.
				if !assert.Contains(t, []int{3, 4}, docs) {
					return
				}
				assert.Equal(t, docs == 4, len(snap.Lexical("storm", 5)) > 0)
				assert.Equal(t, snap.lexical.Len(), snap.vectors.Len())

				hits, err := snap.Vector(ctx, q, 10)
				if !assert.NoError(t, err) {
					return
				}
				assert.Len(t, hits, docs)
				for _, h := range hits {
					_, ok := snap.Chunk(h.ID)
					assert.True(t, ok, "vector hit %s resolves in its own snapshot", h.ID)
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		next := small
		if i%2 == 0 {
			next = large
		}
		_, err := s.Update(ctx, next)
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	assert.Equal(t, uint64(21), s.Current().Version())
}

func TestStore_UpdateDropsRemovedArticles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newCountingEmbedder(t))

	_, err := s.Index(ctx, testCorpus())
	require.NoError(t, err)

	snap, err := s.Update(ctx, testCorpus()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Stats().Documents)
	assert.Empty(t, snap.Lexical("quantum", 5))
}

func TestStore_SkipsFailedDocuments(t *testing.T) {
	ctx := context.Background()
	emb := newCountingEmbedder(t)
	emb.failOn = "qubits"
	m := metrics.New(prometheus.NewRegistry())
	s := newTestStore(t, emb, WithMetrics(m))

	snap, err := s.Index(ctx, testCorpus())
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Stats().Documents)
	assert.Equal(t, 1, snap.Stats().Skipped)
	assert.Empty(t, snap.Lexical("qubits", 5), "a skipped document is absent from both indexes")
	assert.NotEmpty(t, snap.Lexical("penalties", 5))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.IndexSkippedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.IndexVersion))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.IndexChunks))
}

func TestStore_BatchesAcrossDocuments(t *testing.T) {
	emb := newCountingEmbedder(t)
	s := newTestStore(t, emb, WithBatchSize(2))

	_, err := s.Index(context.Background(), testCorpus())
	require.NoError(t, err)
	assert.Equal(t, 2, emb.calls)
}

func TestStore_EmptyCorpus(t *testing.T) {
	s := newTestStore(t, newCountingEmbedder(t))

	snap, err := s.Index(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Stats().Chunks)
	assert.Empty(t, snap.Lexical("anything", 5))

	hits, err := snap.Vector(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_CancelledContext(t *testing.T) {
	s := newTestStore(t, newCountingEmbedder(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Index(ctx, testCorpus())
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, s.Current(), "nothing is published on failure")
}

type failingBackend struct{}

func (failingBackend) Build(context.Context, uint64, []chunking.Chunk, [][]float32) (VectorIndex, error) {
	return nil, errors.New("backend down")
}
func (failingBackend) Close() error { return nil }

func TestStore_BackendFailureKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	emb := newCountingEmbedder(t)
	s := newTestStore(t, emb)

	first, err := s.Index(ctx, testCorpus())
	require.NoError(t, err)

	s.backend = failingBackend{}
	_, err = s.Update(ctx, testCorpus())
	require.Error(t, err)
	assert.Same(t, first, s.Current())
}
