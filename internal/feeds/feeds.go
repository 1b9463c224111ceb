// Package feeds provides the literal document sources listed under
// sources: in the configuration: RSS/Atom feeds and extra CSV files.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/fyrsmithlabs/newsrag/internal/config"
	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/errs"
)

// Source fetches one page of raw articles.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (corpus.Page, error)
}

// RSSSource reads an RSS or Atom feed.
type RSSSource struct {
	name   string
	url    string
	parser *gofeed.Parser
}

// NewRSSSource creates a feed source. name defaults to the URL.
func NewRSSSource(name, url string) *RSSSource {
	if name == "" {
		name = url
	}
	return &RSSSource{name: name, url: url, parser: gofeed.NewParser()}
}

// Name implements Source.
func (s *RSSSource) Name() string { return "rss:" + s.name }

// Fetch implements Source. Feed errors are upstream fetch failures.
func (s *RSSSource) Fetch(ctx context.Context) (corpus.Page, error) {
	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		page := corpus.Page{Source: s.Name()}
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			page.Status = httpErr.StatusCode
		}
		return page, errs.Upstream("feeds.rss", fmt.Errorf("fetching %s: %w", s.url, err))
	}

	source := feed.Title
	if source == "" {
		source = s.name
	}

	page := corpus.Page{Source: s.Name(), Status: corpus.StatusOK}
	for _, item := range feed.Items {
		page.Articles = append(page.Articles, corpus.RawArticle{
			Author:      itemAuthor(item),
			Title:       item.Title,
			SourceName:  source,
			URL:         item.Link,
			Description: item.Description,
			PublishedAt: itemPublished(item),
			Content:     item.Content,
		})
	}
	return page, nil
}

func itemAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	return ""
}

func itemPublished(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC().Format(time.RFC3339)
	default:
		return item.Published
	}
}

// CSVSource reads an extra local corpus table with the same columns as the
// file store.
type CSVSource struct {
	name string
	path string
}

// NewCSVSource creates a file source. name defaults to the path.
func NewCSVSource(name, path string) *CSVSource {
	if name == "" {
		name = path
	}
	return &CSVSource{name: name, path: path}
}

// Name implements Source.
func (s *CSVSource) Name() string { return "csv:" + s.name }

// Fetch implements Source.
func (s *CSVSource) Fetch(ctx context.Context) (corpus.Page, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return corpus.Page{Source: s.Name()}, errs.Document("feeds.csv", err)
	}
	defer f.Close()

	records, err := corpus.ReadCSV(ctx, f)
	if err != nil {
		return corpus.Page{Source: s.Name()}, errs.Document("feeds.csv", fmt.Errorf("parsing %s: %w", s.path, err))
	}

	page := corpus.Page{Source: s.Name(), Status: corpus.StatusOK}
	page.Articles = make([]corpus.RawArticle, 0, len(records))
	for _, r := range records {
		page.Articles = append(page.Articles, corpus.RawArticle{
			Author:      r.Author,
			Title:       r.Title,
			SourceName:  r.Source,
			URL:         r.URL,
			Description: r.Description,
			PublishedAt: r.PublishedAt,
			Content:     r.Content,
			Country:     r.Country,
			Category:    r.Category,
		})
	}
	return page, nil
}

// FromConfig builds the literal sources listed in the configuration.
func FromConfig(sources []config.SourceConfig) ([]Source, error) {
	out := make([]Source, 0, len(sources))
	for i, sc := range sources {
		switch sc.Kind {
		case "rss":
			out = append(out, NewRSSSource(sc.Name, sc.URL))
		case "csv":
			out = append(out, NewCSVSource(sc.Name, sc.Path))
		default:
			return nil, errs.Configuration("feeds.from_config", fmt.Errorf("sources[%d]: unknown kind %q", i, sc.Kind))
		}
	}
	return out, nil
}
