// Package newsapi fetches top-headline pages from a NewsAPI-compatible
// endpoint.
package newsapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/config"
	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/errs"
)

// Client calls the top-headlines endpoint.
type Client struct {
	http     *resty.Client
	endpoint string
	country  string
	language string
	pageSize int
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client from the news settings.
func NewClient(cfg config.NewsConfig, opts ...Option) *Client {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetHeader("X-Api-Key", cfg.APIKey.Value()),
		endpoint: cfg.Endpoint,
		country:  cfg.Country,
		language: cfg.Language,
		pageSize: cfg.PageSize,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

type apiResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []apiArticle `json:"articles"`
}

// TopHeadlines fetches one page of headlines for category. An empty
// category queries without a category filter.
//
// A non-200 response returns the page (carrying the status and no
// articles) together with an error of kind errs.KindUpstreamFetch, so the
// caller can log it and treat the page as a no-op.
func (c *Client) TopHeadlines(ctx context.Context, category string) (corpus.Page, error) {
	source := "newsapi"
	if category != "" {
		source += ":" + category
	}

	params := map[string]string{}
	if c.country != "" {
		params["country"] = c.country
	}
	if c.language != "" {
		params["language"] = c.language
	}
	if category != "" {
		params["category"] = category
	}
	if c.pageSize > 0 {
		params["pageSize"] = strconv.Itoa(c.pageSize)
	}

	var body apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		SetError(&body).
		Get(c.endpoint)
	if err != nil {
		return corpus.Page{Source: source}, errs.Upstream("newsapi.top_headlines", err)
	}

	page := corpus.Page{Source: source, Status: resp.StatusCode()}
	if resp.StatusCode() != http.StatusOK {
		msg := body.Message
		if msg == "" {
			msg = "Failed to fetch news"
		}
		return page, errs.Upstream("newsapi.top_headlines",
			fmt.Errorf("status %d: %s", resp.StatusCode(), msg))
	}

	page.Articles = make([]corpus.RawArticle, 0, len(body.Articles))
	for _, a := range body.Articles {
		page.Articles = append(page.Articles, corpus.RawArticle{
			Author:      a.Author,
			Title:       a.Title,
			SourceName:  a.Source.Name,
			URL:         a.URL,
			Description: a.Description,
			PublishedAt: a.PublishedAt,
			Content:     a.Content,
			Country:     c.country,
			Category:    category,
		})
	}

	c.logger.Debug("fetched headlines",
		zap.String("source", source),
		zap.Int("articles", len(page.Articles)),
		zap.Int("total_results", body.TotalResults))
	return page, nil
}

// CategorySource adapts one category of the client to a page source.
type CategorySource struct {
	client   *Client
	category string
}

// Category returns a source that fetches the given category.
func (c *Client) Category(category string) *CategorySource {
	return &CategorySource{client: c, category: category}
}

// Name identifies the source in logs.
func (s *CategorySource) Name() string {
	if s.category == "" {
		return "newsapi"
	}
	return "newsapi:" + s.category
}

// Fetch returns the category's current headlines page.
func (s *CategorySource) Fetch(ctx context.Context) (corpus.Page, error) {
	return s.client.TopHeadlines(ctx, s.category)
}
