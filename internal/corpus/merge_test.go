package corpus

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func raw(title, url string) RawArticle {
	return RawArticle{
		Title:       title,
		URL:         url,
		Author:      "Staff",
		SourceName:  "Wire",
		PublishedAt: "2024-01-01T00:00:00Z",
		Description: title + " description",
		Content:     title + " content",
	}
}

func okPage(articles ...RawArticle) Page {
	return Page{Source: "test", Status: StatusOK, Articles: articles}
}

func TestDerivedTextOf_FixedOrder(t *testing.T) {
	rec, ok := Normalize(RawArticle{
		Title:       "Company X acquired",
		Author:      "Jane Doe",
		SourceName:  "Reuters",
		PublishedAt: "2024-01-01",
		Description: "Deal announced",
		Content:     "Company Y bought Company X.",
		URL:         "https://example.com/x",
	})
	require.True(t, ok)

	want := "Title: Company X acquired\n" +
		"Author: Jane Doe\n" +
		"Source: Reuters\n" +
		"Published At: 2024-01-01\n" +
		"Description: Deal announced\n" +
		"Content: Company Y bought Company X.\n" +
		"URL: https://example.com/x"
	assert.Equal(t, want, rec.DerivedText)
}

func TestNormalize(t *testing.T) {
	rec, ok := Normalize(RawArticle{Title: "  Spaced \n  title ", URL: " https://a "})
	require.True(t, ok)
	assert.Equal(t, "Spaced title", rec.Title)
	assert.Equal(t, "https://a", rec.URL)

	_, ok = Normalize(RawArticle{Author: "nobody"})
	assert.False(t, ok, "records without title and url are dropped")
}

func TestMergePage_AppendsAndReplaces(t *testing.T) {
	existing := MergePage(nil, okPage(raw("A", "https://a"), raw("B", "https://b")), KeyTitleURL)
	require.Len(t, existing, 2)

	updated := raw("A", "https://a")
	updated.Content = "fresh content"
	merged := MergePage(existing, okPage(updated, raw("C", "https://c")), KeyTitleURL)

	require.Len(t, merged, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{merged[0].Title, merged[1].Title, merged[2].Title})
	assert.Equal(t, "fresh content", merged[0].Content)
	assert.Contains(t, merged[0].DerivedText, "Content: fresh content")
	assert.Equal(t, "A content", existing[0].Content, "existing corpus is not mutated")
}

func TestMergePage_ScenarioC(t *testing.T) {
	existing := MergePage(nil, okPage(raw("A", "https://a"), raw("B", "https://b")), KeyTitleURL)
	page := okPage(raw("B", "https://b"), raw("C", "https://c"), raw("D", "https://d"))

	merged := MergePage(existing, page, KeyTitleURL)
	assert.Len(t, merged, len(existing)+2)
}

func TestMergePage_KeyPolicies(t *testing.T) {
	existing := MergePage(nil, okPage(raw("Old title", "https://a")), KeyURL)

	byURL := MergePage(existing, okPage(raw("New title", "https://a")), KeyURL)
	require.Len(t, byURL, 1)
	assert.Equal(t, "New title", byURL[0].Title)

	existing = MergePage(nil, okPage(raw("Old title", "https://a")), KeyTitleURL)
	byTitleURL := MergePage(existing, okPage(raw("New title", "https://a")), KeyTitleURL)
	assert.Len(t, byTitleURL, 2)
}

func TestMergePage_URLKeyDropsRecordsWithoutURL(t *testing.T) {
	page := okPage(
		raw("Only a title", ""),
		raw("Another title", ""),
		raw("Linked", "https://a"),
	)

	byURL := MergePage(nil, page, KeyURL)
	require.Len(t, byURL, 1)
	assert.Equal(t, "https://a", byURL[0].URL)

	byTitleURL := MergePage(nil, page, KeyTitleURL)
	assert.Len(t, byTitleURL, 3, "title and url keep title-only records apart")
}

func TestMergePage_DuplicateInPageLastWins(t *testing.T) {
	first := raw("A", "https://a")
	first.Content = "first"
	second := raw("A", "https://a")
	second.Content = "second"

	merged := MergePage(nil, okPage(first, raw("B", "https://b"), second), KeyTitleURL)
	require.Len(t, merged, 2)
	assert.Equal(t, "second", merged[0].Content)
}

func TestMergePage_NoOpPages(t *testing.T) {
	existing := MergePage(nil, okPage(raw("A", "https://a")), KeyTitleURL)

	tests := []struct {
		name string
		page Page
	}{
		{"non-success status", Page{Status: 401, Articles: []RawArticle{raw("B", "https://b")}}},
		{"empty page", Page{Status: StatusOK}},
		{"zero status", Page{Articles: []RawArticle{raw("B", "https://b")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, existing, MergePage(existing, tt.page, KeyTitleURL))
		})
	}
}

func TestDedupe(t *testing.T) {
	c := Corpus{
		{Title: "A", URL: "u1", Content: "old"},
		{Title: "B", URL: "u2"},
		{Title: "A2", URL: "u1", Content: "new"},
	}
	out := Dedupe(c, KeyURL)
	require.Len(t, out, 2)
	assert.Equal(t, "new", out[0].Content)
}

func TestSheetContent(t *testing.T) {
	r := ArticleRecord{Title: "T", Description: "D", URL: "https://u", PublishedAt: "2024", Source: "S"}
	assert.Equal(t, "T. D. Read more at https://u. Published on 2024 by S.", SheetContent(r))
	assert.Equal(t, "kept", SheetContent(ArticleRecord{Content: "kept", URL: "https://u"}))
}

func genRaw(t *rapid.T, label string) RawArticle {
	// A small key space makes collisions with the corpus likely.
	n := rapid.IntRange(0, 6).Draw(t, label+"_n")
	return RawArticle{
		Title:   fmt.Sprintf("title-%d", n%3),
		URL:     fmt.Sprintf("https://news.example/%d", n),
		Content: rapid.StringMatching(`[a-z ]{0,12}`).Draw(t, label+"_content"),
	}
}

func genPage(t *rapid.T, label string) Page {
	n := rapid.IntRange(0, 8).Draw(t, label+"_len")
	articles := make([]RawArticle, n)
	for i := range articles {
		articles[i] = genRaw(t, fmt.Sprintf("%s_%d", label, i))
	}
	return okPage(articles...)
}

func TestMergePage_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := KeyPolicy(rapid.IntRange(0, 1).Draw(t, "policy"))
		existing := MergePage(nil, genPage(t, "seed"), policy)
		page := genPage(t, "page")

		once := MergePage(existing, page, policy)
		twice := MergePage(once, page, policy)
		if fmt.Sprint(once) != fmt.Sprint(twice) {
			t.Fatalf("merge not idempotent:\nonce:  %v\ntwice: %v", once, twice)
		}

		seen := map[string]bool{}
		for _, r := range once {
			k := r.Key(policy)
			if seen[k] {
				t.Fatalf("duplicate key %q after merge", k)
			}
			seen[k] = true
		}

		// Every key in the page resolves to the page's last record for it.
		last := map[string]string{}
		for _, a := range page.Articles {
			rec, _ := Normalize(a)
			last[rec.Key(policy)] = rec.Content
		}
		for _, r := range once {
			if want, ok := last[r.Key(policy)]; ok && r.Content != want {
				t.Fatalf("key %q holds %q, want page value %q", r.Key(policy), r.Content, want)
			}
		}

		if !strings.HasPrefix(strings.Join(once.Keys(policy), ","), strings.Join(existing.Keys(policy), ",")) {
			t.Fatalf("existing keys lost their order")
		}
	})
}
