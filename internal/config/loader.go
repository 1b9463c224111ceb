package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/newsrag/internal/errs"
)

const (
	// DefaultPath is the config file used when --config_file is not given.
	DefaultPath = "app.yaml"

	envPrefix         = "NEWSRAG_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load reads configuration from the YAML file at path, then applies
// environment overrides, credential variables and validation.
//
// Configuration precedence (highest to lowest):
//  1. Credential variables (NEWS_API_KEY, GEMINI_API_KEY, ...)
//  2. NEWSRAG_-prefixed variables (NEWSRAG_SERVER_PORT -> server.port,
//     NEWSRAG_INDEX__QDRANT__HOST -> index.qdrant.host)
//  3. The YAML file
//  4. Default()
//
// The file is required. A missing, unreadable, oversized or unparsable file
// and a failed validation all return an error of kind
// errs.KindConfiguration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Configuration("config.dotenv", err)
	}

	content, err := readConfigFile(path)
	if err != nil {
		return nil, errs.Configuration("config.read", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, errs.Configuration("config.parse", fmt.Errorf("parsing %s: %w", path, err))
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, errs.Configuration("config.env", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errs.Configuration("config.unmarshal", err)
	}

	applyCredentials(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errs.Configuration("config.validate", err)
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return io.ReadAll(f)
}

// envKey maps NEWSRAG_SECTION_FIELD_NAME to section.field_name. A double
// underscore marks a nesting boundary: NEWSRAG_CACHE__REDIS__ADDR maps to
// cache.redis.addr.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if strings.Contains(lower, "__") {
		return strings.ReplaceAll(lower, "__", ".")
	}
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// applyCredentials resolves well-known credential variables. A credential
// with no value anywhere gets its placeholder sentinel and is recorded so
// the caller can log it.
func applyCredentials(cfg *Config) {
	cfg.placeholders = nil

	resolve := func(dst *Secret, placeholder string, names ...string) {
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				*dst = Secret(v)
				return
			}
		}
		if !dst.IsSet() {
			*dst = Secret(placeholder)
			cfg.placeholders = append(cfg.placeholders, names[0])
		}
	}

	resolve(&cfg.News.APIKey, PlaceholderNewsAPIKey, "NEWS_API_KEY", "API_KEY")
	resolve(&cfg.LLM.APIKey, PlaceholderLLMKey, "GEMINI_API_KEY", "LLM_API_KEY")
	if cfg.Fallback.Enabled {
		resolve(&cfg.Fallback.SerpAPI.APIKey, PlaceholderSerpAPIKey, "SERPAPI_API_KEY", "SERPAPI")
	}

	if cfg.Corpus.Backend == BackendSheets {
		resolve(&cfg.Sheets.Credentials, PlaceholderCredentials, "GOOGLE_SHEETS_CREDENTIALS", "CREDENTIALS_FILE")
		if v := os.Getenv("SHEET_ID"); v != "" {
			cfg.Sheets.SpreadsheetID = v
		}
		if cfg.Sheets.SpreadsheetID == "" {
			cfg.Sheets.SpreadsheetID = PlaceholderSheetID
			cfg.placeholders = append(cfg.placeholders, "SHEET_ID")
		}
	}
}

// IsPlaceholder reports whether v is one of the placeholder sentinels.
func IsPlaceholder(v string) bool {
	switch v {
	case PlaceholderNewsAPIKey, PlaceholderLLMKey, PlaceholderSerpAPIKey, PlaceholderSheetID, PlaceholderCredentials:
		return true
	}
	return false
}
