package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fyrsmithlabs/newsrag/internal/config"
)

// SerpAPISearcher queries a SerpAPI-compatible search endpoint.
type SerpAPISearcher struct {
	http     *resty.Client
	endpoint string
	engine   string
	apiKey   string
}

// NewSerpAPISearcher creates a searcher from the search settings.
func NewSerpAPISearcher(cfg config.SerpAPIConfig) *SerpAPISearcher {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	engine := cfg.Engine
	if engine == "" {
		engine = "google"
	}
	return &SerpAPISearcher{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		endpoint: cfg.Endpoint,
		engine:   engine,
		apiKey:   cfg.APIKey.Value(),
	}
}

type organicResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
}

type searchResponse struct {
	OrganicResults []organicResult `json:"organic_results"`
	Error          string          `json:"error"`
}

// Search implements Searcher.
func (s *SerpAPISearcher) Search(ctx context.Context, query string) (string, error) {
	var body searchResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":       query,
			"engine":  s.engine,
			"api_key": s.apiKey,
		}).
		SetResult(&body).
		SetError(&body).
		Get(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("serpapi request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		msg := body.Error
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("serpapi status %d: %s", resp.StatusCode(), msg)
	}

	for _, r := range body.OrganicResults {
		if r.Link != "" {
			return r.Link, nil
		}
	}
	return "", nil
}
