package index

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/newsrag/internal/chunking"
)

// Stats describes a published snapshot.
type Stats struct {
	Version   uint64    `json:"version"`
	Documents int       `json:"documents"`
	Chunks    int       `json:"chunks"`
	Vectors   int       `json:"vectors"`
	Skipped   int       `json:"skipped"`
	Reused    int       `json:"reused"`
	Model     string    `json:"model"`
	BuiltAt   time.Time `json:"built_at"`
}

// DocumentInfo is the metadata of one indexed article.
type DocumentInfo struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Chunks      int    `json:"chunks"`
}

// Snapshot is an immutable, versioned view of the index. The lexical and
// vector indexes cover exactly the same chunks.
type Snapshot struct {
	stats     Stats
	chunks    []chunking.Chunk
	byID      map[string]int
	documents []DocumentInfo
	lexical   *BM25
	vectors   VectorIndex
	embedded  map[string][]float32
}

// Version returns the snapshot version, starting at 1.
func (s *Snapshot) Version() uint64 { return s.stats.Version }

// Stats returns the snapshot's counters.
func (s *Snapshot) Stats() Stats { return s.stats }

// Documents returns the indexed articles in corpus order.
func (s *Snapshot) Documents() []DocumentInfo {
	out := make([]DocumentInfo, len(s.documents))
	copy(out, s.documents)
	return out
}

// Chunks returns every indexed chunk in corpus order.
func (s *Snapshot) Chunks() []chunking.Chunk {
	out := make([]chunking.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Chunk looks up a chunk by ID.
func (s *Snapshot) Chunk(id string) (chunking.Chunk, bool) {
	i, ok := s.byID[id]
	if !ok {
		return chunking.Chunk{}, false
	}
	return s.chunks[i], true
}

// Lexical returns the top n BM25 matches for query.
func (s *Snapshot) Lexical(query string, n int) []Hit {
	return s.lexical.Search(query, n)
}

// Vector returns the top n nearest chunks to the query embedding.
func (s *Snapshot) Vector(ctx context.Context, query []float32, n int) ([]Hit, error) {
	if s.vectors == nil {
		return nil, nil
	}
	return s.vectors.Search(ctx, query, n)
}

// embedding returns the stored vector of a chunk, for reuse by the next
// build.
func (s *Snapshot) embedding(id string) ([]float32, bool) {
	v, ok := s.embedded[id]
	return v, ok
}
