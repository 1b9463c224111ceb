package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// TEIConfig holds configuration for a text-embeddings-inference server.
type TEIConfig struct {
	BaseURL string
	Model   string
	// Dimension overrides detection from the model name.
	Dimension int
	Timeout   time.Duration
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// TEIProvider calls the /embed endpoint of a TEI server.
type TEIProvider struct {
	http      *resty.Client
	model     string
	dimension int
}

// NewTEIProvider creates a TEI client.
func NewTEIProvider(cfg TEIConfig) (*TEIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = DetectDimension(cfg.Model)
	}
	return &TEIProvider{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		model:     cfg.Model,
		dimension: dim,
	}, nil
}

type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

func (t *TEIProvider) embed(ctx context.Context, inputs interface{}) ([][]float32, error) {
	var vectors [][]float32
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(teiRequest{Inputs: inputs, Truncate: true}).
		SetResult(&vectors).
		Post("/embed")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode(), resp.String())
	}
	return vectors, nil
}

// EmbedDocuments embeds texts in one request.
func (t *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err := t.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery embeds a single text.
func (t *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := t.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	return vectors[0], nil
}

func (t *TEIProvider) Dimension() int { return t.dimension }
func (t *TEIProvider) Model() string  { return t.model }

// Close is a no-op; TEI is reached over HTTP.
func (t *TEIProvider) Close() error { return nil }
