package agent

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/fyrsmithlabs/newsrag/internal/config"
)

// DefaultMaxChars bounds the scraped text handed to the model.
const DefaultMaxChars = 10000

// HTTPScraper fetches a page and extracts the text of its body.
type HTTPScraper struct {
	http     *resty.Client
	maxChars int
	logger   *zap.Logger
}

// NewHTTPScraper creates a scraper from the scrape settings.
func NewHTTPScraper(cfg config.ScrapeConfig, logger *zap.Logger) *HTTPScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	client := resty.New().SetTimeout(timeout)
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &HTTPScraper{http: client, maxChars: maxChars, logger: logger}
}

// Scrape implements Scraper. A non-200 response or a page without body
// text returns ErrNoContent.
func (s *HTTPScraper) Scrape(ctx context.Context, url string) (string, error) {
	resp, err := s.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		s.logger.Warn("failed to retrieve page",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode()))
		return "", fmt.Errorf("%w: status %d", ErrNoContent, resp.StatusCode())
	}

	doc, err := html.Parse(bytes.NewReader(resp.Body()))
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", url, err)
	}
	text := truncate(BodyText(doc), s.maxChars)
	if text == "" {
		return "", fmt.Errorf("%w: empty body", ErrNoContent)
	}
	return text, nil
}

// BodyText returns the trimmed text nodes under the document's <body>,
// joined by single spaces. Script and style contents are skipped.
func BodyText(doc *html.Node) string {
	body := findBody(doc)
	if body == nil {
		return ""
	}
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, strings.Join(strings.Fields(t), " "))
			}
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	return strings.Join(parts, " ")
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// truncate keeps the first limit runes of s.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
