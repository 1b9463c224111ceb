// Package ingest collects news pages into the durable corpus, either once or
// on a fixed interval.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/feeds"
	"github.com/fyrsmithlabs/newsrag/internal/metrics"
)

// Result summarizes one collection pass.
type Result struct {
	RunID    string        `json:"run_id"`
	Pages    int           `json:"pages"`
	Skipped  int           `json:"skipped"`
	Before   int           `json:"before"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
}

// Added returns how many records the pass appended. Replacements in place
// do not count.
func (r Result) Added() int { return r.Records - r.Before }

// Collector fetches a page from every source, merges the usable pages into
// the stored corpus and saves it.
//
// Collect is serialized: concurrent callers (the daemon tick and a manual
// refresh) run one after the other against the same store.
type Collector struct {
	store   corpus.Store
	sources []feeds.Source
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithMetrics sets the collectors used to record runs.
func WithMetrics(m *metrics.Metrics) CollectorOption {
	return func(c *Collector) { c.metrics = m }
}

// NewCollector creates a collector over store and sources.
func NewCollector(store corpus.Store, sources []feeds.Source, logger *zap.Logger, opts ...CollectorOption) (*Collector, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{store: store, sources: sources, logger: logger, metrics: metrics.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Collect runs one pass.
//
// A source error, a non-200 page or an empty page is logged and skipped. Only
// store failures are returned; when every page is a no-op the store is not
// written.
func (c *Collector) Collect(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	res := Result{RunID: uuid.NewString()}
	log := c.logger.With(zap.String("run_id", res.RunID))

	var pages []corpus.Page
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			c.metrics.IngestRunsTotal.WithLabelValues("error").Inc()
			return res, err
		}
		page, err := src.Fetch(ctx)
		if err != nil {
			res.Skipped++
			log.Warn("source fetch failed, skipping page",
				zap.String("source", src.Name()),
				zap.Int("status", page.Status),
				zap.Error(err))
			continue
		}
		if !page.OK() {
			res.Skipped++
			log.Warn("no new articles fetched",
				zap.String("source", src.Name()),
				zap.Int("status", page.Status))
			continue
		}
		pages = append(pages, page)
	}
	res.Pages = len(pages)

	existing, err := c.store.Load(ctx)
	if err != nil {
		c.metrics.IngestRunsTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("loading corpus: %w", err)
	}
	res.Before = len(existing)
	res.Records = len(existing)

	if len(pages) == 0 {
		res.Duration = time.Since(start)
		c.metrics.IngestRunsTotal.WithLabelValues("noop").Inc()
		log.Info("collection pass had no usable pages", zap.Int("skipped", res.Skipped))
		return res, nil
	}

	merged := existing
	for _, page := range pages {
		merged = corpus.MergePage(merged, page, c.store.KeyPolicy())
	}

	if err := c.store.Save(ctx, merged); err != nil {
		c.metrics.IngestRunsTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("saving corpus: %w", err)
	}

	res.Records = len(merged)
	res.Duration = time.Since(start)
	c.metrics.IngestRunsTotal.WithLabelValues("success").Inc()
	c.metrics.IngestRecords.Set(float64(res.Records))

	log.Info("total unique articles in corpus",
		zap.Int("records", res.Records),
		zap.Int("added", res.Added()),
		zap.Int("pages", res.Pages),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", res.Duration))
	return res, nil
}
