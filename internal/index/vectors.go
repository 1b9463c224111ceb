package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	chromem "github.com/philippgille/chromem-go"

	"github.com/fyrsmithlabs/newsrag/internal/chunking"
)

// VectorIndex answers nearest-neighbour queries over one snapshot's chunks.
type VectorIndex interface {
	// Search returns up to n chunk IDs by descending cosine similarity.
	Search(ctx context.Context, query []float32, n int) ([]Hit, error)
	// Len returns the number of indexed vectors.
	Len() int
	// Close releases the index. Readers still holding the snapshot must not
	// search after Close.
	Close() error
}

// VectorBackend builds the vector index of a new snapshot version.
// vectors[i] is the embedding of chunks[i].
type VectorBackend interface {
	Build(ctx context.Context, version uint64, chunks []chunking.Chunk, vectors [][]float32) (VectorIndex, error)
	Close() error
}

// ChromemBackend keeps each snapshot's vectors in its own in-memory chromem
// database.
type ChromemBackend struct{}

// NewChromemBackend creates the in-memory backend.
func NewChromemBackend() *ChromemBackend { return &ChromemBackend{} }

const chromemCollection = "chunks"

// errNoEmbeddingFunc guards the collection: vectors are always precomputed.
var errNoEmbeddingFunc = errors.New("chromem: embeddings must be precomputed")

// Build implements VectorBackend.
func (b *ChromemBackend) Build(ctx context.Context, version uint64, chunks []chunking.Chunk, vectors [][]float32) (VectorIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chromem: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	db := chromem.NewDB()
	embed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }
	col, err := db.CreateCollection(chromemCollection, map[string]string{
		"version": fmt.Sprint(version),
	}, embed)
	if err != nil {
		return nil, fmt.Errorf("chromem: creating collection: %w", err)
	}

	idx := &ChromemVectors{col: col, order: make(map[string]int, len(chunks))}

	docs := make([]chromem.Document, 0, len(chunks))
	for i, c := range chunks {
		// A zero vector has no direction; chromem would normalize it to NaN.
		if isZero(vectors[i]) {
			continue
		}
		idx.order[c.ID] = len(docs)
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Embedding: vectors[i],
			Content:   c.Text,
			Metadata: map[string]string{
				"article_key": c.ArticleKey,
			},
		})
	}
	if len(docs) == 0 {
		return idx, nil
	}

	// Embeddings are precomputed, so AddDocuments only copies and normalizes.
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("chromem: adding documents: %w", err)
	}
	return idx, nil
}

// Close implements VectorBackend.
func (b *ChromemBackend) Close() error { return nil }

// ChromemVectors is one snapshot's in-memory vector index.
type ChromemVectors struct {
	col   *chromem.Collection
	order map[string]int
}

// Search implements VectorIndex. Equal similarities keep indexing order.
func (v *ChromemVectors) Search(ctx context.Context, query []float32, n int) ([]Hit, error) {
	count := v.col.Count()
	if n <= 0 || count == 0 || isZero(query) {
		return nil, nil
	}
	if n > count {
		n = count
	}

	results, err := v.col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: querying: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Score: float64(r.Similarity)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return v.order[hits[i].ID] < v.order[hits[j].ID]
	})
	return hits, nil
}

// Len implements VectorIndex.
func (v *ChromemVectors) Len() int { return v.col.Count() }

// Close implements VectorIndex. The database is garbage collected with the
// snapshot.
func (v *ChromemVectors) Close() error { return nil }

func isZero(vec []float32) bool {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	return sum == 0 || math.IsNaN(sum)
}
