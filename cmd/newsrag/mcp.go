package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/newsrag/internal/mcp"
	"github.com/fyrsmithlabs/newsrag/internal/metrics"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the news tools over MCP stdio",
		Long: `Run an MCP server on stdin/stdout exposing news_answer, news_verify,
news_retrieve and news_statistics.

Logs go to stderr. The corpus is indexed in the background and, with
index.watch enabled, re-indexed when it changes.

Example MCP client configuration:
  {"command": "newsrag", "args": ["mcp", "--config_file", "/etc/newsrag/app.yaml"]}`,
		Args: cobra.NoArgs,
		RunE: runMCP,
	}
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := initLogger(cfg, true, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()
	logger := log.Underlying()
	placeholderWarnings(cfg, logger)

	comps, err := initComponents(ctx, cfg, logger, metrics.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Warn("closing components failed", zap.Error(err))
		}
	}()

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "newsrag",
		Version: version,
		Logger:  logger,
	}, comps.service, comps.retriever, comps.index)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		comps.indexAndWatch(gctx)
		return nil
	})
	g.Go(func() error {
		defer stop()
		return server.Run(gctx)
	})
	return g.Wait()
}
