package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/newsrag/internal/config"
)

// Model generates text. The system instruction may be empty.
type Model interface {
	// Name identifies the model in cache fingerprints.
	Name() string
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ErrEmptyResponse indicates the model returned no text.
var ErrEmptyResponse = errors.New("empty response from model")

// LangchainModel adapts a langchaingo chat model, rate limited and bounded
// by a per-call timeout.
type LangchainModel struct {
	llm         llms.Model
	name        string
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
}

// ModelOption configures a LangchainModel.
type ModelOption func(*LangchainModel)

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) ModelOption {
	return func(m *LangchainModel) { m.timeout = d }
}

// WithRateLimit allows perMinute calls per minute with the given burst.
// Zero disables limiting.
func WithRateLimit(perMinute float64, burst int) ModelOption {
	return func(m *LangchainModel) {
		if perMinute <= 0 {
			m.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(perMinute/60), burst)
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ModelOption {
	return func(m *LangchainModel) { m.temperature = t }
}

// NewLangchainModel wraps llm, which must already be configured for the
// model called name.
func NewLangchainModel(llm llms.Model, name string, opts ...ModelOption) *LangchainModel {
	m := &LangchainModel{llm: llm, name: name}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewModel builds the chat model selected by cfg.Provider for the model
// named model. An empty model uses cfg.Model.
func NewModel(ctx context.Context, cfg config.LLMConfig, model string) (*LangchainModel, error) {
	if model == "" {
		model = cfg.Model
	}

	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case "googleai", "":
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey.Value()),
			googleai.WithDefaultModel(model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithToken(cfg.APIKey.Value()),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s model %s: %w", cfg.Provider, model, err)
	}

	return NewLangchainModel(llm, model,
		WithTemperature(cfg.Temperature),
		WithTimeout(cfg.Timeout.Duration()),
		WithRateLimit(cfg.RequestsPerMinute, cfg.Burst),
	), nil
}

// Name implements Model.
func (m *LangchainModel) Name() string { return m.name }

// Generate implements Model.
func (m *LangchainModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter error: %w", err)
		}
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	messages := make([]llms.MessageContent, 0, 2)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	opts := []llms.CallOption{llms.WithModel(m.name)}
	if m.temperature > 0 {
		opts = append(opts, llms.WithTemperature(m.temperature))
	}

	resp, err := m.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%s GenerateContent failed: %w", m.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
