package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsrag/internal/errs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"NEWS_API_KEY", "API_KEY", "GEMINI_API_KEY", "LLM_API_KEY",
		"SERPAPI_API_KEY", "SERPAPI", "GOOGLE_SHEETS_CREDENTIALS", "CREDENTIALS_FILE", "SHEET_ID",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_DefaultsFillMissingFields(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, "server:\n  port: 9000\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 400, cfg.Index.MaxTokens)
	assert.Equal(t, 60, cfg.Index.RRFConstant)
	assert.Equal(t, 600*time.Second, cfg.Ingest.Interval.Duration())
	assert.Equal(t, "gemini-2.0-flash", cfg.Fallback.Model)
	assert.Equal(t, 10000, cfg.Fallback.Scrape.MaxChars)
}

func TestLoad_YAMLValues(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, `
corpus:
  backend: sqlite
  path: /tmp/news.db
news:
  categories: [business, sports]
  timeout: 5s
ingest:
  embedded: false
  interval: 1m
sources:
  - kind: rss
    name: bbc
    url: https://feeds.bbci.co.uk/news/rss.xml
cache:
  redis:
    addr: localhost:6379
    ttl: 1h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Corpus.Backend)
	assert.Equal(t, []string{"business", "sports"}, cfg.News.Categories)
	assert.Equal(t, 5*time.Second, cfg.News.Timeout.Duration())
	assert.False(t, cfg.Ingest.Embedded)
	assert.Equal(t, time.Minute, cfg.Ingest.Interval.Duration())
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "rss", cfg.Sources[0].Kind)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Cache.Redis.TTL.Duration())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("NEWSRAG_SERVER_PORT", "8181")
	t.Setenv("NEWSRAG_INDEX_TOP_K", "3")
	t.Setenv("NEWSRAG_INDEX__QDRANT__HOST", "qdrant.internal")
	path := writeConfig(t, "server:\n  port: 9000\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Index.TopK)
	assert.Equal(t, "qdrant.internal", cfg.Index.Qdrant.Host)
}

func TestLoad_CredentialsAndPlaceholders(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GEMINI_API_KEY", "gem-123")
	t.Setenv("SERPAPI", "serp-456")
	path := writeConfig(t, "llm:\n  api_key: from-yaml\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gem-123", cfg.LLM.APIKey.Value(), "env wins over yaml")
	assert.Equal(t, "serp-456", cfg.Fallback.SerpAPI.APIKey.Value())
	assert.Equal(t, PlaceholderNewsAPIKey, cfg.News.APIKey.Value())
	assert.Equal(t, []string{"NEWS_API_KEY"}, cfg.PlaceholderKeys())
	assert.True(t, IsPlaceholder(cfg.News.APIKey.Value()))
}

func TestLoad_SheetsPlaceholders(t *testing.T) {
	clearCredentialEnv(t)
	path := writeConfig(t, "corpus:\n  backend: sheets\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, PlaceholderSheetID, cfg.Sheets.SpreadsheetID)
	assert.Equal(t, PlaceholderCredentials, cfg.Sheets.Credentials.Value())
	assert.Contains(t, cfg.PlaceholderKeys(), "SHEET_ID")
	assert.Contains(t, cfg.PlaceholderKeys(), "GOOGLE_SHEETS_CREDENTIALS")
}

func TestLoad_Failures(t *testing.T) {
	clearCredentialEnv(t)

	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }},
		{"unparsable", func(t *testing.T) string { return writeConfig(t, "server: [unclosed\n") }},
		{"directory", func(t *testing.T) string { return t.TempDir() }},
		{"invalid values", func(t *testing.T) string { return writeConfig(t, "index:\n  top_k: 0\n") }},
		{"unknown backend", func(t *testing.T) string { return writeConfig(t, "corpus:\n  backend: excel\n") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.path(t))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, errors.Is(err, errs.ErrConfiguration))
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.port", envKey("NEWSRAG_SERVER_PORT"))
	assert.Equal(t, "llm.requests_per_minute", envKey("NEWSRAG_LLM_REQUESTS_PER_MINUTE"))
	assert.Equal(t, "cache.redis.addr", envKey("NEWSRAG_CACHE__REDIS__ADDR"))
}

func TestSecret_Redacts(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "hunter2", s.Value())
	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(b))
	assert.Equal(t, "", Secret("").String())
}

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}
