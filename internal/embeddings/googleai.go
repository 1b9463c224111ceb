package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
)

// GoogleAIConfig holds configuration for Google AI embeddings.
type GoogleAIConfig struct {
	Model     string
	APIKey    string
	Dimension int
	BatchSize int
}

// GoogleAIProvider embeds through the Gemini API via langchaingo.
type GoogleAIProvider struct {
	impl      lcembeddings.Embedder
	model     string
	dimension int
}

// NewGoogleAIProvider creates the client and its langchaingo embedder.
func NewGoogleAIProvider(ctx context.Context, cfg GoogleAIConfig) (*GoogleAIProvider, error) {
	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: googleai embeddings need an API key", ErrInvalidConfig)
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing googleai client: %w", err)
	}

	opts := []lcembeddings.Option{lcembeddings.WithStripNewLines(false)}
	if cfg.BatchSize > 0 {
		opts = append(opts, lcembeddings.WithBatchSize(cfg.BatchSize))
	}
	impl, err := lcembeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("constructing googleai embedder: %w", err)
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = DetectDimension(model)
	}
	return &GoogleAIProvider{impl: impl, model: model, dimension: dim}, nil
}

func (g *GoogleAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err := g.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

func (g *GoogleAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vector, err := g.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

func (g *GoogleAIProvider) Dimension() int { return g.dimension }
func (g *GoogleAIProvider) Model() string  { return g.model }

func (g *GoogleAIProvider) Close() error { return nil }
