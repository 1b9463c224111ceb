// Package corpus holds the durable collection of news articles: the record
// model, the deduplicating merge, and the stores that persist it.
package corpus

import (
	"strings"
)

// StatusOK is the page status a source reports for a successful fetch.
const StatusOK = 200

// KeyPolicy selects the identity key a store deduplicates by.
type KeyPolicy int

const (
	// KeyTitleURL identifies a record by title and URL.
	KeyTitleURL KeyPolicy = iota
	// KeyURL identifies a record by URL alone.
	KeyURL
)

func (p KeyPolicy) String() string {
	if p == KeyURL {
		return "url"
	}
	return "title+url"
}

// RawArticle is a record as delivered by a source, before normalization.
type RawArticle struct {
	Author      string
	Title       string
	SourceName  string
	URL         string
	Description string
	PublishedAt string
	Content     string
	Country     string
	Category    string
}

// Page is one bounded batch of raw records from a single fetch.
type Page struct {
	Source   string
	Status   int
	Articles []RawArticle
}

// OK reports whether the page came from a successful fetch and has records.
func (p Page) OK() bool {
	return p.Status == StatusOK && len(p.Articles) > 0
}

// ArticleRecord is a normalized article.
type ArticleRecord struct {
	Title       string `db:"title" json:"title"`
	Author      string `db:"author" json:"author"`
	Source      string `db:"source" json:"source"`
	PublishedAt string `db:"published_at" json:"published_at"`
	Description string `db:"description" json:"description"`
	Content     string `db:"content" json:"content"`
	URL         string `db:"url" json:"url"`
	Country     string `db:"country" json:"country,omitempty"`
	Category    string `db:"category" json:"category,omitempty"`
	DerivedText string `db:"-" json:"-"`
}

// Key returns the record's identity key under policy.
func (r ArticleRecord) Key(policy KeyPolicy) string {
	if policy == KeyURL {
		return r.URL
	}
	return r.Title + "\x1f" + r.URL
}

// HasKey reports whether r can be identified under policy. A URL key needs
// a URL; title-only records would otherwise share the empty key.
func (r ArticleRecord) HasKey(policy KeyPolicy) bool {
	if policy == KeyURL {
		return r.URL != ""
	}
	return true
}

// DerivedTextOf renders the fixed-order searchable text of r.
func DerivedTextOf(r ArticleRecord) string {
	var b strings.Builder
	b.Grow(len(r.Title) + len(r.Description) + len(r.Content) + len(r.URL) + 128)
	b.WriteString("Title: ")
	b.WriteString(r.Title)
	b.WriteString("\nAuthor: ")
	b.WriteString(r.Author)
	b.WriteString("\nSource: ")
	b.WriteString(r.Source)
	b.WriteString("\nPublished At: ")
	b.WriteString(r.PublishedAt)
	b.WriteString("\nDescription: ")
	b.WriteString(r.Description)
	b.WriteString("\nContent: ")
	b.WriteString(r.Content)
	b.WriteString("\nURL: ")
	b.WriteString(r.URL)
	return b.String()
}

// Normalize converts a raw article into a record with its derived text set.
// It reports false for records carrying neither a title nor a URL.
func Normalize(raw RawArticle) (ArticleRecord, bool) {
	r := ArticleRecord{
		Title:       clean(raw.Title),
		Author:      clean(raw.Author),
		Source:      clean(raw.SourceName),
		PublishedAt: clean(raw.PublishedAt),
		Description: clean(raw.Description),
		Content:     clean(raw.Content),
		URL:         strings.TrimSpace(raw.URL),
		Country:     clean(raw.Country),
		Category:    clean(raw.Category),
	}
	if r.Title == "" && r.URL == "" {
		return ArticleRecord{}, false
	}
	r.DerivedText = DerivedTextOf(r)
	return r, true
}

// WithDerivedText returns r with DerivedText recomputed. Stores call it on
// load since the derived text is never persisted.
func WithDerivedText(r ArticleRecord) ArticleRecord {
	r.DerivedText = DerivedTextOf(r)
	return r
}

// SheetContent renders the single prose cell the spreadsheet store keeps per
// article. Records loaded from a sheet have no title and keep their content.
func SheetContent(r ArticleRecord) string {
	if r.Title == "" {
		return r.Content
	}
	return r.Title + ". " + r.Description + ". Read more at " + r.URL +
		". Published on " + r.PublishedAt + " by " + r.Source + "."
}

// clean trims and collapses internal whitespace runs to single spaces,
// keeping line breaks out of the derived text's field values.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
