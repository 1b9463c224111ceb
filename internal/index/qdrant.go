package index

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/fyrsmithlabs/newsrag/internal/chunking"
	"github.com/fyrsmithlabs/newsrag/internal/config"
)

const (
	qdrantUpsertBatch    = 256
	qdrantMaxMessageSize = 50 * 1024 * 1024
	payloadChunkID       = "chunk_id"
	payloadArticleKey    = "article_key"
)

// pointNamespace derives stable point UUIDs from chunk IDs.
var pointNamespace = uuid.MustParse("6f1c7d52-3a8e-4c55-9b7e-2d1f0c4a9e61")

// qdrantAPI is the subset of *qdrant.Client the backend uses.
type qdrantAPI interface {
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	ListCollections(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// QdrantBackend stores each snapshot version in its own collection and
// keeps the newest Retain collections, so queries still running against the
// previous snapshot stay valid.
type QdrantBackend struct {
	client    qdrantAPI
	prefix    string
	retain    int
	dimension int
	logger    *zap.Logger
}

// NewQdrantBackend connects to Qdrant over gRPC.
func NewQdrantBackend(cfg config.QdrantConfig, dimension int, logger *zap.Logger) (*QdrantBackend, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrant: vector dimension must be positive, got %d", dimension)
	}
	if !cfg.UseTLS {
		fmt.Fprintf(os.Stderr, "WARNING: Qdrant gRPC using plaintext (TLS disabled). Insecure for production.\n")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey.Value(),
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(qdrantMaxMessageSize),
				grpc.MaxCallSendMsgSize(qdrantMaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connecting to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return newQdrantBackend(client, cfg, dimension, logger), nil
}

func newQdrantBackend(client qdrantAPI, cfg config.QdrantConfig, dimension int, logger *zap.Logger) *QdrantBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	retain := cfg.Retain
	if retain < 1 {
		retain = 1
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "newsrag_chunks"
	}
	return &QdrantBackend{
		client:    client,
		prefix:    prefix,
		retain:    retain,
		dimension: dimension,
		logger:    logger,
	}
}

func (b *QdrantBackend) collectionName(version uint64) string {
	return fmt.Sprintf("%s_v%d", b.prefix, version)
}

// collectionVersion parses a collection name produced by collectionName.
func (b *QdrantBackend) collectionVersion(name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, b.prefix+"_v")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Build implements VectorBackend.
func (b *QdrantBackend) Build(ctx context.Context, version uint64, chunks []chunking.Chunk, vectors [][]float32) (VectorIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("qdrant: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	name := b.collectionName(version)

	existing, err := b.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("qdrant: listing collections: %w", err)
	}
	for _, c := range existing {
		if c == name {
			// Left over from an earlier process that reached the same version.
			if err := b.client.DeleteCollection(ctx, name); err != nil {
				return nil, fmt.Errorf("qdrant: deleting stale collection %s: %w", name, err)
			}
		}
	}

	if err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(b.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return nil, fmt.Errorf("qdrant: creating collection %s: %w", name, err)
	}

	idx := &QdrantVectors{client: b.client, collection: name, order: make(map[string]int, len(chunks))}

	points := make([]*qdrant.PointStruct, 0, qdrantUpsertBatch)
	flush := func() error {
		if len(points) == 0 {
			return nil
		}
		_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		points = points[:0]
		return err
	}
	for i, c := range chunks {
		if isZero(vectors[i]) {
			continue
		}
		idx.order[c.ID] = len(idx.order)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(c.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: map[string]*qdrant.Value{
				payloadChunkID:    qdrant.NewValueString(c.ID),
				payloadArticleKey: qdrant.NewValueString(c.ArticleKey),
			},
		})
		if len(points) == qdrantUpsertBatch {
			if err := flush(); err != nil {
				_ = b.client.DeleteCollection(ctx, name)
				return nil, fmt.Errorf("qdrant: upserting points to %s: %w", name, err)
			}
		}
	}
	if err := flush(); err != nil {
		_ = b.client.DeleteCollection(ctx, name)
		return nil, fmt.Errorf("qdrant: upserting points to %s: %w", name, err)
	}

	b.prune(ctx, version, existing)
	return idx, nil
}

// prune drops collections older than the retention window and any newer
// ones a previous process left behind. Failures are logged only.
func (b *QdrantBackend) prune(ctx context.Context, current uint64, existing []string) {
	for _, name := range existing {
		v, ok := b.collectionVersion(name)
		if !ok || v == current {
			continue
		}
		if v > current || current-v >= uint64(b.retain) {
			if err := b.client.DeleteCollection(ctx, name); err != nil {
				b.logger.Warn("failed to prune qdrant collection",
					zap.String("collection", name), zap.Error(err))
				continue
			}
			b.logger.Debug("pruned qdrant collection", zap.String("collection", name))
		}
	}
}

// Close implements VectorBackend.
func (b *QdrantBackend) Close() error { return b.client.Close() }

// PointID maps a chunk ID to its Qdrant point UUID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// QdrantVectors is one snapshot's collection.
type QdrantVectors struct {
	client     qdrantAPI
	collection string
	order      map[string]int
}

// Search implements VectorIndex.
func (v *QdrantVectors) Search(ctx context.Context, query []float32, n int) ([]Hit, error) {
	if n <= 0 || len(v.order) == 0 || isZero(query) {
		return nil, nil
	}
	if n > len(v.order) {
		n = len(v.order)
	}

	points, err := v.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: v.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(n)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: searching %s: %w", v.collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		id := p.GetPayload()[payloadChunkID].GetStringValue()
		if _, ok := v.order[id]; !ok {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: float64(p.GetScore())})
	}
	return hits, nil
}

// Len implements VectorIndex.
func (v *QdrantVectors) Len() int { return len(v.order) }

// Close implements VectorIndex. Collections are removed by the backend's
// retention, not here.
func (v *QdrantVectors) Close() error { return nil }

// Collection returns the backing collection name.
func (v *QdrantVectors) Collection() string { return v.collection }
