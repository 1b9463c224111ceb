package newsapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsrag/internal/config"
	"github.com/fyrsmithlabs/newsrag/internal/errs"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default().News
	cfg.Endpoint = srv.URL + "/v2/top-headlines"
	cfg.APIKey = config.Secret("test-key")
	return NewClient(cfg)
}

func TestTopHeadlines_OK(t *testing.T) {
	var gotQuery map[string]string
	var gotKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotQuery = map[string]string{
			"country":  r.URL.Query().Get("country"),
			"language": r.URL.Query().Get("language"),
			"category": r.URL.Query().Get("category"),
			"pageSize": r.URL.Query().Get("pageSize"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"totalResults": 2,
			"articles": [
				{"source": {"id": null, "name": "Reuters"}, "author": "Jane", "title": "Rates hold",
				 "description": "Fed holds", "url": "https://r/1", "publishedAt": "2024-01-01T00:00:00Z",
				 "content": "The Fed held rates."},
				{"source": {"name": "AP"}, "author": null, "title": "Markets", "url": "https://ap/2"}
			]
		}`))
	})

	page, err := client.TopHeadlines(context.Background(), "business")
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, map[string]string{
		"country": "us", "language": "en", "category": "business", "pageSize": "100",
	}, gotQuery)

	assert.True(t, page.OK())
	assert.Equal(t, "newsapi:business", page.Source)
	require.Len(t, page.Articles, 2)
	first := page.Articles[0]
	assert.Equal(t, "Reuters", first.SourceName)
	assert.Equal(t, "Rates hold", first.Title)
	assert.Equal(t, "us", first.Country)
	assert.Equal(t, "business", first.Category)
	assert.Empty(t, page.Articles[1].Author)
}

func TestTopHeadlines_NonOKIsUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`))
	})

	page, err := client.TopHeadlines(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUpstreamFetch))
	assert.Contains(t, err.Error(), "Your API key is invalid.")
	assert.Equal(t, http.StatusUnauthorized, page.Status)
	assert.False(t, page.OK())
	assert.Equal(t, "newsapi", page.Source)
}

func TestTopHeadlines_EmptyPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","totalResults":0,"articles":[]}`))
	})

	page, err := client.TopHeadlines(context.Background(), "science")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.Status)
	assert.False(t, page.OK(), "an empty page is a no-op")
}

func TestCategorySource(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "health", r.URL.Query().Get("category"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","articles":[{"title":"T","url":"https://u"}]}`))
	})

	src := client.Category("health")
	assert.Equal(t, "newsapi:health", src.Name())
	page, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, page.Articles, 1)
}
