// Package config provides configuration loading for newsrag.
//
// Configuration comes from a YAML file named by --config_file, overridden by
// NEWSRAG_-prefixed environment variables, then by the well-known credential
// variables (NEWS_API_KEY, GEMINI_API_KEY, SERPAPI_API_KEY,
// GOOGLE_SHEETS_CREDENTIALS, SHEET_ID). A .env file in the working directory is
// read first.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Corpus backends.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
)

// Vector backends.
const (
	VectorChromem = "chromem"
	VectorQdrant  = "qdrant"
)

// Placeholder sentinels substituted for missing credentials.
const (
	PlaceholderNewsAPIKey  = "KEY_INVALID"
	PlaceholderLLMKey      = "GEMINI-KEY-NOT-FOUND"
	PlaceholderSerpAPIKey  = "SERPAPI-KEY-NOT-FOUND"
	PlaceholderSheetID     = "SHEETID_NOT_FOUND"
	PlaceholderCredentials = "FILE_NOT_FOUND"
)

// Config holds the complete newsrag configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Corpus        CorpusConfig        `koanf:"corpus"`
	News          NewsConfig          `koanf:"news"`
	Sheets        SheetsConfig        `koanf:"sheets"`
	Sources       []SourceConfig      `koanf:"sources"`
	Ingest        IngestConfig        `koanf:"ingest"`
	Index         IndexConfig         `koanf:"index"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	LLM           LLMConfig           `koanf:"llm"`
	Cache         CacheConfig         `koanf:"cache"`
	Fallback      FallbackConfig      `koanf:"fallback"`
	Observability ObservabilityConfig `koanf:"observability"`

	placeholders []string
}

// ServerConfig holds query server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RequestTimeout  Duration `koanf:"request_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CorpusConfig selects the durable corpus artifact.
type CorpusConfig struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
}

// NewsConfig holds the NewsAPI top-headlines source settings.
type NewsConfig struct {
	Endpoint   string   `koanf:"endpoint"`
	APIKey     Secret   `koanf:"api_key"`
	Country    string   `koanf:"country"`
	Language   string   `koanf:"language"`
	Categories []string `koanf:"categories"`
	PageSize   int      `koanf:"page_size"`
	Timeout    Duration `koanf:"timeout"`
}

// SheetsConfig holds the remote spreadsheet corpus settings.
type SheetsConfig struct {
	SpreadsheetID string `koanf:"spreadsheet_id"`
	// Credentials is either service-account JSON or a path to it.
	Credentials Secret `koanf:"credentials"`
	Sheet       string `koanf:"sheet"`
}

// SourceConfig is one literal document source merged during embedded load.
type SourceConfig struct {
	Kind string `koanf:"kind"` // csv | rss
	Name string `koanf:"name"`
	Path string `koanf:"path"`
	URL  string `koanf:"url"`
}

// IngestConfig controls embedded and daemon ingestion.
type IngestConfig struct {
	Embedded   bool     `koanf:"embedded"`
	Interval   Duration `koanf:"interval"`
	RunTimeout Duration `koanf:"run_timeout"`
}

// IndexConfig controls chunking, retrieval and the vector backend.
type IndexConfig struct {
	MaxTokens     int          `koanf:"max_tokens"`
	Encoding      string       `koanf:"encoding"`
	TopN          int          `koanf:"top_n"`
	TopK          int          `koanf:"top_k"`
	RRFConstant   int          `koanf:"rrf_constant"`
	VectorBackend string       `koanf:"vector_backend"`
	Watch         bool         `koanf:"watch"`
	WatchDebounce Duration     `koanf:"watch_debounce"`
	PollInterval  Duration     `koanf:"poll_interval"`
	Qdrant        QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds the remote vector backend connection.
type QdrantConfig struct {
	Host             string `koanf:"host"`
	Port             int    `koanf:"port"`
	APIKey           Secret `koanf:"api_key"`
	UseTLS           bool   `koanf:"use_tls"`
	CollectionPrefix string `koanf:"collection_prefix"`
	Retain           int    `koanf:"retain"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"` // fastembed | tei | googleai | hash
	Model     string `koanf:"model"`
	CacheDir  string `koanf:"cache_dir"`
	BaseURL   string `koanf:"base_url"`
	Dimension int    `koanf:"dimension"`
	BatchSize int    `koanf:"batch_size"`
}

// LLMConfig holds the answer model settings.
type LLMConfig struct {
	Provider          string   `koanf:"provider"` // googleai | openai
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	BaseURL           string   `koanf:"base_url"`
	Temperature       float64  `koanf:"temperature"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerMinute float64  `koanf:"requests_per_minute"`
	Burst             int      `koanf:"burst"`
}

// CacheConfig holds answer cache settings.
type CacheConfig struct {
	Size  int         `koanf:"size"`
	Redis RedisConfig `koanf:"redis"`
}

// RedisConfig enables the shared second-level cache when Addr is set.
type RedisConfig struct {
	Addr     string   `koanf:"addr"`
	Password Secret   `koanf:"password"`
	DB       int      `koanf:"db"`
	TTL      Duration `koanf:"ttl"`
	Prefix   string   `koanf:"prefix"`
}

// FallbackConfig holds the web verification agent settings.
type FallbackConfig struct {
	Enabled bool          `koanf:"enabled"`
	Model   string        `koanf:"model"`
	SerpAPI SerpAPIConfig `koanf:"serpapi"`
	Scrape  ScrapeConfig  `koanf:"scrape"`
}

// SerpAPIConfig holds the web search settings.
type SerpAPIConfig struct {
	Endpoint string   `koanf:"endpoint"`
	APIKey   Secret   `koanf:"api_key"`
	Engine   string   `koanf:"engine"`
	Timeout  Duration `koanf:"timeout"`
}

// ScrapeConfig holds page fetch settings.
type ScrapeConfig struct {
	MaxChars  int      `koanf:"max_chars"`
	Timeout   Duration `koanf:"timeout"`
	UserAgent string   `koanf:"user_agent"`
}

// ObservabilityConfig holds logging and telemetry settings.
type ObservabilityConfig struct {
	ServiceName string          `koanf:"service_name"`
	LogLevel    string          `koanf:"log_level"`
	LogFormat   string          `koanf:"log_format"`
	Telemetry   TelemetryConfig `koanf:"telemetry"`
}

// TelemetryConfig holds OTLP export settings.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Protocol   string  `koanf:"protocol"`
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when a field is absent from every
// source.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
			RequestTimeout:  Duration(2 * time.Minute),
		},
		Corpus: CorpusConfig{
			Backend: BackendCSV,
			Path:    "data/all_news.csv",
		},
		News: NewsConfig{
			Endpoint:   "https://newsapi.org/v2/top-headlines",
			Country:    "us",
			Language:   "en",
			Categories: []string{"business"},
			PageSize:   100,
			Timeout:    Duration(30 * time.Second),
		},
		Sheets: SheetsConfig{
			Sheet: "Sheet1",
		},
		Ingest: IngestConfig{
			Embedded:   true,
			Interval:   Duration(600 * time.Second),
			RunTimeout: Duration(2 * time.Minute),
		},
		Index: IndexConfig{
			MaxTokens:     400,
			Encoding:      "cl100k_base",
			TopN:          20,
			TopK:          6,
			RRFConstant:   60,
			VectorBackend: VectorChromem,
			Watch:         true,
			WatchDebounce: Duration(2 * time.Second),
			PollInterval:  Duration(time.Minute),
			Qdrant: QdrantConfig{
				Host:             "localhost",
				Port:             6334,
				CollectionPrefix: "newsrag_chunks",
				Retain:           2,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "fastembed",
			Model:     "BAAI/bge-small-en-v1.5",
			BaseURL:   "http://localhost:8080",
			Dimension: 384,
			BatchSize: 64,
		},
		LLM: LLMConfig{
			Provider:          "googleai",
			Model:             "gemini-2.5-pro-exp-03-25",
			Timeout:           Duration(60 * time.Second),
			RequestsPerMinute: 50,
			Burst:             5,
		},
		Cache: CacheConfig{
			Size: 1024,
			Redis: RedisConfig{
				TTL:    Duration(24 * time.Hour),
				Prefix: "newsrag:answer:",
			},
		},
		Fallback: FallbackConfig{
			Enabled: true,
			Model:   "gemini-2.0-flash",
			SerpAPI: SerpAPIConfig{
				Endpoint: "https://serpapi.com/search.json",
				Engine:   "google",
				Timeout:  Duration(30 * time.Second),
			},
			Scrape: ScrapeConfig{
				MaxChars:  10000,
				Timeout:   Duration(30 * time.Second),
				UserAgent: "newsrag/1.0",
			},
		},
		Observability: ObservabilityConfig{
			ServiceName: "newsrag",
			LogLevel:    "info",
			LogFormat:   "json",
			Telemetry: TelemetryConfig{
				Endpoint:   "localhost:4317",
				Protocol:   "grpc",
				Insecure:   true,
				SampleRate: 1.0,
			},
		},
	}
}

// PlaceholderKeys lists the credential variables that were missing and
// replaced with a placeholder sentinel.
func (c *Config) PlaceholderKeys() []string {
	return slices.Clone(c.placeholders)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.Host == "" {
		errs = append(errs, errors.New("server.host is required"))
	}

	switch c.Corpus.Backend {
	case BackendCSV, BackendSQLite:
		if c.Corpus.Path == "" {
			errs = append(errs, fmt.Errorf("corpus.path is required for backend %q", c.Corpus.Backend))
		}
	case BackendSheets:
		if c.Sheets.Sheet == "" {
			errs = append(errs, errors.New("sheets.sheet is required for backend \"sheets\""))
		}
	default:
		errs = append(errs, fmt.Errorf("corpus.backend must be csv, sqlite or sheets, got %q", c.Corpus.Backend))
	}

	if c.News.PageSize < 1 || c.News.PageSize > 100 {
		errs = append(errs, fmt.Errorf("news.page_size must be 1-100, got %d", c.News.PageSize))
	}
	if c.Ingest.Interval.Duration() <= 0 {
		errs = append(errs, errors.New("ingest.interval must be positive"))
	}

	for i, src := range c.Sources {
		switch src.Kind {
		case "csv":
			if src.Path == "" {
				errs = append(errs, fmt.Errorf("sources[%d]: path is required for kind csv", i))
			}
		case "rss":
			if src.URL == "" {
				errs = append(errs, fmt.Errorf("sources[%d]: url is required for kind rss", i))
			}
		default:
			errs = append(errs, fmt.Errorf("sources[%d]: kind must be csv or rss, got %q", i, src.Kind))
		}
	}

	if c.Index.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("index.max_tokens must be positive, got %d", c.Index.MaxTokens))
	}
	if c.Index.TopK < 1 {
		errs = append(errs, fmt.Errorf("index.top_k must be positive, got %d", c.Index.TopK))
	}
	if c.Index.TopN < c.Index.TopK {
		errs = append(errs, fmt.Errorf("index.top_n (%d) must be >= index.top_k (%d)", c.Index.TopN, c.Index.TopK))
	}
	if c.Index.RRFConstant < 1 {
		errs = append(errs, fmt.Errorf("index.rrf_constant must be positive, got %d", c.Index.RRFConstant))
	}
	switch c.Index.VectorBackend {
	case VectorChromem:
	case VectorQdrant:
		if c.Index.Qdrant.Host == "" || c.Index.Qdrant.Port == 0 {
			errs = append(errs, errors.New("index.qdrant.host and port are required for vector_backend qdrant"))
		}
		if c.Index.Qdrant.Retain < 1 {
			errs = append(errs, errors.New("index.qdrant.retain must be at least 1"))
		}
	default:
		errs = append(errs, fmt.Errorf("index.vector_backend must be chromem or qdrant, got %q", c.Index.VectorBackend))
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "googleai", "hash":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be fastembed, tei, googleai or hash, got %q", c.Embeddings.Provider))
	}
	if c.Embeddings.Dimension < 1 {
		errs = append(errs, errors.New("embeddings.dimension must be positive"))
	}

	switch c.LLM.Provider {
	case "googleai", "openai":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be googleai or openai, got %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("llm.requests_per_minute must be positive"))
	}

	if c.Cache.Size < 1 {
		errs = append(errs, fmt.Errorf("cache.size must be positive, got %d", c.Cache.Size))
	}

	if c.Fallback.Enabled && c.Fallback.Scrape.MaxChars < 1 {
		errs = append(errs, errors.New("fallback.scrape.max_chars must be positive"))
	}

	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("observability.log_format must be json or console, got %q", c.Observability.LogFormat))
	}

	return errors.Join(errs...)
}
