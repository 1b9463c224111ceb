package embeddings

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder produces vectors. Document and query embeddings may differ for
// models that prefix their inputs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder with a fixed output size.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Model names the model, for fingerprints and metrics.
	Model() string
	// Close releases resources held by the provider.
	Close() error
}

// NewProvider builds the provider selected by cfg.Provider. apiKey is only
// used by the googleai provider.
func NewProvider(ctx context.Context, cfg config.EmbeddingsConfig, apiKey string, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "fastembed", "":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	case "googleai":
		p, err = NewGoogleAIProvider(ctx, GoogleAIConfig{
			Model:     cfg.Model,
			APIKey:    apiKey,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
		})
	case "hash":
		p, err = NewHashProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", p.Model()),
		zap.Int("dimension", p.Dimension()))
	return Instrument(p, NewMetrics(logger)), nil
}
