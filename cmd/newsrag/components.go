package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/agent"
	"github.com/fyrsmithlabs/newsrag/internal/answer"
	"github.com/fyrsmithlabs/newsrag/internal/chunking"
	"github.com/fyrsmithlabs/newsrag/internal/config"
	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/embeddings"
	"github.com/fyrsmithlabs/newsrag/internal/feeds"
	"github.com/fyrsmithlabs/newsrag/internal/index"
	"github.com/fyrsmithlabs/newsrag/internal/ingest"
	"github.com/fyrsmithlabs/newsrag/internal/metrics"
	"github.com/fyrsmithlabs/newsrag/internal/newsapi"
	"github.com/fyrsmithlabs/newsrag/internal/query"
	"github.com/fyrsmithlabs/newsrag/internal/retrieval"
)

// components holds the query pipeline shared by serve and mcp.
type components struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	corpus    corpus.Store
	index     *index.Store
	retriever *retrieval.Retriever
	service   *query.Service

	closers []func() error
}

// Close releases every resource in reverse order of acquisition.
func (c *components) Close() error {
	var errList []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// initComponents builds the corpus store, index, retriever and answer
// pipeline. The index starts empty; callers publish the first snapshot.
func initComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (_ *components, err error) {
	c := &components{cfg: cfg, logger: logger, metrics: m}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.corpus, err = corpus.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.corpus.Close)

	embedder, err := embeddings.NewProvider(ctx, cfg.Embeddings, cfg.LLM.APIKey.Value(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	c.closers = append(c.closers, embedder.Close)
	logger.Info("embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", embedder.Model()),
		zap.Int("dimension", embedder.Dimension()))

	chunker, err := chunking.New(chunking.NewTokenizer(cfg.Index.Encoding, logger), cfg.Index.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	opts := []index.Option{
		index.WithKeyPolicy(c.corpus.KeyPolicy()),
		index.WithBatchSize(cfg.Embeddings.BatchSize),
		index.WithMetrics(m),
	}
	if cfg.Index.VectorBackend == config.VectorQdrant {
		backend, err := index.NewQdrantBackend(cfg.Index.Qdrant, embedder.Dimension(), logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, index.WithVectorBackend(backend))
		logger.Info("qdrant vector backend configured",
			zap.String("host", cfg.Index.Qdrant.Host),
			zap.Int("port", cfg.Index.Qdrant.Port))
	}
	c.index, err = index.NewStore(chunker, embedder, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}
	c.closers = append(c.closers, c.index.Close)

	c.retriever = retrieval.NewRetriever(c.index, embedder, logger,
		retrieval.WithTopN(cfg.Index.TopN),
		retrieval.WithRRFConstant(cfg.Index.RRFConstant),
	)

	cache, closeCache, err := answer.NewCache(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("creating answer cache: %w", err)
	}
	c.closers = append(c.closers, closeCache)

	model, err := answer.NewModel(ctx, cfg.LLM, "")
	if err != nil {
		return nil, fmt.Errorf("creating answer model: %w", err)
	}
	generator, err := answer.NewGenerator(model, logger, answer.WithCache(cache), answer.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	svcOpts := []query.Option{query.WithTopK(cfg.Index.TopK)}
	if cfg.Fallback.Enabled {
		verifier, err := initAgent(ctx, cfg, logger, m)
		if err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, query.WithVerifier(verifier))
	}
	c.service, err = query.NewService(c.retriever, generator, logger, svcOpts...)
	if err != nil {
		return nil, err
	}

	logger.Info("query pipeline initialized",
		zap.String("model", generator.Model()),
		zap.Bool("fallback", c.service.FallbackEnabled()),
		zap.String("vector_backend", cfg.Index.VectorBackend))
	return c, nil
}

// initAgent builds the web verification agent on its own model.
func initAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*agent.Agent, error) {
	model, err := answer.NewModel(ctx, cfg.LLM, cfg.Fallback.Model)
	if err != nil {
		return nil, fmt.Errorf("creating fallback model: %w", err)
	}
	return agent.New(
		agent.NewSerpAPISearcher(cfg.Fallback.SerpAPI),
		agent.NewHTTPScraper(cfg.Fallback.Scrape, logger),
		model,
		logger,
		agent.WithMetrics(m),
	)
}

// initialIndex loads the corpus and publishes the first snapshot.
func (c *components) initialIndex(ctx context.Context) error {
	records, err := c.corpus.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	snap, err := c.index.Index(ctx, records)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	st := snap.Stats()
	c.logger.Info("index published",
		zap.Uint64("version", st.Version),
		zap.Int("documents", st.Documents),
		zap.Int("chunks", st.Chunks))
	return nil
}

// indexAndWatch publishes the first snapshot and, when configured, keeps the
// index in step with the corpus until ctx is cancelled. Failures are logged:
// the front ends keep reporting "indexing" and the watcher retries on the
// next corpus change.
func (c *components) indexAndWatch(ctx context.Context) {
	if err := c.initialIndex(ctx); err != nil {
		c.logger.Error("initial index failed", zap.Error(err))
	}
	if !c.cfg.Index.Watch {
		return
	}
	watcher := index.NewWatcher(c.corpus, c.index, c.logger,
		index.WithDebounce(c.cfg.Index.WatchDebounce.Duration()),
		index.WithPollInterval(c.cfg.Index.PollInterval.Duration()),
	)
	if err := watcher.Run(ctx); err != nil {
		c.logger.Error("corpus watcher stopped", zap.Error(err))
	}
}

// collectorSources lists the news API categories followed by the literal
// sources from the configuration.
func collectorSources(cfg *config.Config, logger *zap.Logger) ([]feeds.Source, error) {
	client := newsapi.NewClient(cfg.News, newsapi.WithLogger(logger))

	categories := cfg.News.Categories
	if len(categories) == 0 {
		categories = []string{""}
	}
	sources := make([]feeds.Source, 0, len(categories)+len(cfg.Sources))
	for _, cat := range categories {
		sources = append(sources, client.Category(cat))
	}

	literal, err := feeds.FromConfig(cfg.Sources)
	if err != nil {
		return nil, err
	}
	return append(sources, literal...), nil
}

// newCollector builds the collector that writes into store.
func newCollector(cfg *config.Config, store corpus.Store, logger *zap.Logger, m *metrics.Metrics) (*ingest.Collector, error) {
	sources, err := collectorSources(cfg, logger)
	if err != nil {
		return nil, err
	}
	return ingest.NewCollector(store, sources, logger, ingest.WithMetrics(m))
}

// reindexingRunner collects and then republishes the index directly, for
// servers that do not watch the corpus.
type reindexingRunner struct {
	collector ingest.Runner
	store     corpus.Store
	index     *index.Store
	logger    *zap.Logger
}

// Collect implements ingest.Runner.
func (r *reindexingRunner) Collect(ctx context.Context) (ingest.Result, error) {
	res, err := r.collector.Collect(ctx)
	if err != nil {
		return res, err
	}
	records, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Warn("reload after collection failed", zap.Error(err))
		return res, nil
	}
	if _, err := r.index.Update(ctx, records); err != nil {
		r.logger.Warn("reindex after collection failed", zap.Error(err))
	}
	return res, nil
}
