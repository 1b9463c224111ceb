// Newsrag answers questions about recent news from a locally maintained
// corpus of articles, and checks claims against the web when the corpus has
// nothing to say.
//
// Usage:
//
//	# Start the query server (the default command)
//	newsrag --config_file app.yaml
//
//	# Run one ingestion pass, or keep ingesting on a schedule
//	newsrag ingest
//	newsrag daemon
//
//	# Ask a running server
//	newsrag ask "Who acquired Company X?"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	otellog "go.opentelemetry.io/otel/log"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/config"
	"github.com/fyrsmithlabs/newsrag/internal/logging"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configFile is the YAML configuration path shared by every subcommand.
var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "newsrag",
		Short: "Question answering over a local news corpus",
		Long: `newsrag keeps a corpus of news articles up to date, indexes it for
hybrid lexical and vector retrieval, and answers questions grounded in the
retrieved passages. Questions the corpus cannot answer are checked against
the web.

Running newsrag without a subcommand starts the query server.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVar(&configFile, "config_file", "app.yaml", "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newDaemonCmd(),
		newAskCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "newsrag by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// loadConfig reads and validates the configuration named by --config_file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// initLogger builds the structured logger from the observability section.
// toStderr keeps stdout free for protocol traffic. A non-nil otelProvider
// also ships every entry over OTLP.
func initLogger(cfg *config.Config, toStderr bool, otelProvider otellog.LoggerProvider) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Observability.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Observability.LogLevel, err)
	}
	logCfg.Level = level
	if cfg.Observability.LogFormat != "" {
		logCfg.Format = cfg.Observability.LogFormat
	}
	logCfg.Stderr = toStderr
	if cfg.Observability.ServiceName != "" {
		logCfg.Fields["service"] = cfg.Observability.ServiceName
	}
	logCfg.Fields["version"] = version
	logCfg.OTEL = otelProvider != nil
	return logging.NewLogger(logCfg, otelProvider)
}

// placeholderWarnings logs every credential that fell back to its sentinel.
func placeholderWarnings(cfg *config.Config, logger *zap.Logger) {
	for _, key := range cfg.PlaceholderKeys() {
		logger.Warn("credential not configured, using placeholder", zap.String("key", key))
	}
}
