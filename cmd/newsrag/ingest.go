package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/config"
	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/ingest"
	"github.com/fyrsmithlabs/newsrag/internal/metrics"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one collection pass into the corpus",
		Long: `Fetch one page from every configured source, merge the new articles into
the corpus and save it.

Examples:
  # Collect with the default configuration
  newsrag ingest

  # Collect into the corpus described by another file
  newsrag ingest --config_file staging.yaml`,
		Args: cobra.NoArgs,
		RunE: runIngest,
	}
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Collect into the corpus on a fixed interval",
		Long: `Run the ingestion daemon: one collection pass immediately, then one every
ingest.interval until interrupted. A running server picks the changes up
through its corpus watcher.`,
		Args: cobra.NoArgs,
		RunE: runDaemon,
	}
}

// ingestEnv is the configuration, logger and store an ingestion command
// runs against.
type ingestEnv struct {
	cfg    *config.Config
	logger *zap.Logger
	store  corpus.Store
	sync   func() error
}

func (e *ingestEnv) Close() {
	_ = e.store.Close()
	_ = e.sync()
}

func setupIngest(ctx context.Context) (*ingestEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := initLogger(cfg, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := log.Underlying()
	placeholderWarnings(cfg, logger)

	store, err := corpus.Open(ctx, cfg)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return &ingestEnv{cfg: cfg, logger: logger, store: store, sync: log.Sync}, nil
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := setupIngest(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	collector, err := newCollector(env.cfg, env.store, env.logger, metrics.Default())
	if err != nil {
		return err
	}
	res, err := collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d pages, %d skipped, %d added, %d records\n",
		res.RunID, res.Pages, res.Skipped, res.Added(), res.Records)
	return nil
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := setupIngest(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	m := metrics.Default()
	collector, err := newCollector(env.cfg, env.store, env.logger, m)
	if err != nil {
		return err
	}
	scheduler, err := ingest.NewScheduler(collector, env.logger,
		ingest.WithInterval(env.cfg.Ingest.Interval.Duration()),
		ingest.WithRunTimeout(env.cfg.Ingest.RunTimeout.Duration()),
		ingest.WithSchedulerMetrics(m),
	)
	if err != nil {
		return err
	}
	return scheduler.Run(ctx)
}
