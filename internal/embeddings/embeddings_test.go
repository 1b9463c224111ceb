package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/config"
)

func TestHashProvider_Deterministic(t *testing.T) {
	p, err := NewHashProvider(64)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "Company X acquired")
	require.NoError(t, err)
	b, err := p.EmbedDocuments(ctx, []string{"company x ACQUIRED!", "weather today"})
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b[0], "same words give the same vector")
	assert.NotEqual(t, a, b[1])

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	assert.Equal(t, "hash-64", p.Model())
}

func TestHashProvider_Errors(t *testing.T) {
	_, err := NewHashProvider(0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewHashProvider(8)
	require.NoError(t, err)
	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.EmbedQuery(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTEIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		var req struct {
			Inputs   json.RawMessage `json:"inputs"`
			Truncate bool            `json:"truncate"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		var many []string
		n := 1
		if json.Unmarshal(req.Inputs, &many) == nil {
			n = len(many)
		}
		out := make([][]float32, n)
		for i := range out {
			out[i] = []float32{float32(i), 1, 2}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL + "/", Model: "BAAI/bge-base-en-v1.5"})
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension())

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1, 2}, {1, 1, 2}}, vecs)

	q, err := p.EmbedQuery(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2}, q)
}

func TestTEIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = p.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	_, err = NewTEIProvider(TEIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, config.EmbeddingsConfig{Provider: "hash", Dimension: 16}, "", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 16, p.Dimension())
	require.NoError(t, p.Close())

	_, err = NewProvider(ctx, config.EmbeddingsConfig{Provider: "word2vec"}, "", nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewProvider(ctx, config.EmbeddingsConfig{Provider: "googleai"}, "", nil)
	assert.ErrorIs(t, err, ErrInvalidConfig, "googleai without a key")
}

func TestDetectDimension(t *testing.T) {
	tests := map[string]int{
		"BAAI/bge-small-en-v1.5": 384,
		"text-embedding-004":     768,
		"custom-large-model":     1024,
		"custom-base":            768,
		"anything":               384,
	}
	for model, want := range tests {
		t.Run(model, func(t *testing.T) {
			assert.Equal(t, want, DetectDimension(model))
		})
	}
}

type failingProvider struct{ HashProvider }

func (failingProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("boom")
}

func TestInstrument_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewMetricsWithMeter(mp.Meter("test"), zap.NewNop())

	hp, err := NewHashProvider(8)
	require.NoError(t, err)
	p := Instrument(hp, m)
	_, err = p.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	bad := Instrument(&failingProvider{HashProvider: HashProvider{dimension: 8}}, m)
	_, err = bad.EmbedDocuments(context.Background(), []string{"a"})
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names[metric.Name] = true
			if metric.Name == "newsrag.embedding.errors_total" {
				sum, ok := metric.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				assert.Equal(t, int64(1), sum.DataPoints[0].Value)
			}
		}
	}
	assert.True(t, names["newsrag.embedding.generation_duration_seconds"])
	assert.True(t, names["newsrag.embedding.batch_size"])
	assert.True(t, names["newsrag.embedding.errors_total"])
}
