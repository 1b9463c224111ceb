package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/newsrag/internal/config"
	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	newshttp "github.com/fyrsmithlabs/newsrag/internal/http"
	"github.com/fyrsmithlabs/newsrag/internal/ingest"
	"github.com/fyrsmithlabs/newsrag/internal/metrics"
	"github.com/fyrsmithlabs/newsrag/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP query server",
		Long: `Start the HTTP query server.

The server indexes the corpus in the background and reports "indexing" on
/health until the first snapshot is published. With index.watch enabled it
re-indexes whenever the corpus changes. With ingest.embedded enabled one
collection pass runs before the first index is built.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := initLogger(cfg, false, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version), log.Underlying())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Underlying().Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	// Rebuild the logger so entries also reach the collector.
	if lp := tel.LoggerProvider(); lp != nil {
		otelLog, err := initLogger(cfg, false, lp)
		if err != nil {
			log.Underlying().Warn("otel log bridge disabled", zap.Error(err))
		} else {
			_ = log.Sync()
			log = otelLog
		}
	}
	logger := log.Underlying()
	placeholderWarnings(cfg, logger)

	return serve(ctx, cfg, logger, metrics.Default(), prometheus.DefaultGatherer)
}

// serve runs the query server until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) error {
	logger.Info("starting newsrag",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("corpus_backend", cfg.Corpus.Backend),
		zap.Bool("embedded_ingest", cfg.Ingest.Embedded),
		zap.Bool("watch", cfg.Index.Watch))

	comps, err := initComponents(ctx, cfg, logger, m)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Warn("closing components failed", zap.Error(err))
		}
	}()

	collector, err := newCollector(cfg, comps.corpus, logger, m)
	if err != nil {
		logger.Warn("collector unavailable, ingestion disabled", zap.Error(err))
	}

	deps := newshttp.Deps{
		Answers:   comps.service,
		Retriever: comps.retriever,
		Index:     comps.index,
		Metrics:   m,
		Gatherer:  gatherer,
	}
	if statter, ok := comps.corpus.(corpus.Statter); ok {
		deps.Corpus = statter
	}
	if collector != nil {
		deps.Refresher = refreshRunner(cfg, comps, collector)
	}

	server, err := newshttp.NewServer(deps, logger, &newshttp.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if cfg.Ingest.Embedded && collector != nil {
			embeddedLoad(gctx, collector, cfg.Ingest.RunTimeout.Duration(), logger)
		}
		comps.indexAndWatch(gctx)
		return nil
	})

	err = g.Wait()
	logger.Info("server shutdown complete")
	return err
}

// embeddedLoad runs the one collection pass of embedded mode. A failure is
// logged and the server indexes whatever the store already holds.
func embeddedLoad(ctx context.Context, collector ingest.Runner, timeout time.Duration, logger *zap.Logger) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res, err := collector.Collect(ctx)
	if err != nil {
		logger.Error("embedded load failed", zap.Error(err))
		return
	}
	logger.Info("embedded load complete",
		zap.String("run_id", res.RunID),
		zap.Int("pages", res.Pages),
		zap.Int("added", res.Added()),
		zap.Int("records", res.Records))
}

// refreshRunner returns the runner behind /v1/refresh. Without a watcher it
// re-indexes after each pass.
func refreshRunner(cfg *config.Config, comps *components, collector ingest.Runner) ingest.Runner {
	if cfg.Index.Watch {
		return collector
	}
	return &reindexingRunner{
		collector: collector,
		store:     comps.corpus,
		index:     comps.index,
		logger:    comps.logger,
	}
}
