// Package http provides the newsrag query API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/errs"
	"github.com/fyrsmithlabs/newsrag/internal/index"
	"github.com/fyrsmithlabs/newsrag/internal/ingest"
	"github.com/fyrsmithlabs/newsrag/internal/logging"
	"github.com/fyrsmithlabs/newsrag/internal/metrics"
	"github.com/fyrsmithlabs/newsrag/internal/query"
	"github.com/fyrsmithlabs/newsrag/internal/retrieval"
)

const instrumentationName = "github.com/fyrsmithlabs/newsrag/internal/http"

// Answerer runs the question pipeline.
type Answerer interface {
	Ask(ctx context.Context, question string) (query.Response, error)
	Verify(ctx context.Context, question string) (query.Response, error)
}

// Retriever returns ranked chunks.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.Candidate, error)
}

// Snapshots provides the published index snapshot.
type Snapshots interface {
	Current() *index.Snapshot
}

// Refresher runs one collection pass on demand.
type Refresher interface {
	Collect(ctx context.Context) (ingest.Result, error)
}

// Deps are the components the server exposes. Answers, Retriever and Index
// are required.
type Deps struct {
	Answers   Answerer
	Retriever Retriever
	Index     Snapshots
	// Corpus reports the artifact's modification time in statistics.
	Corpus corpus.Statter
	// Refresher backs POST /v1/refresh; nil disables the endpoint.
	Refresher Refresher
	Metrics   *metrics.Metrics
	// Gatherer serves GET /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Answers == nil || deps.Retriever == nil || deps.Index == nil {
		return nil, fmt.Errorf("answers, retriever and index cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8000,
		}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(deps.Metrics, logger).MetricsMiddleware())
	e.Use(requestLogger(logging.FromZap(logger)))
	if cfg.RequestTimeout > 0 {
		e.Use(requestTimeout(cfg.RequestTimeout))
	}

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/pw_ai_answer", s.handleAnswer)
	v1.POST("/retrieve", s.handleRetrieve)
	v1.POST("/statistics", s.handleStatistics)
	v1.POST("/pw_list_documents", s.handleListDocuments)
	v1.POST("/verify", s.handleVerify)
	v1.POST("/refresh", s.handleRefresh)

	v2 := s.echo.Group("/v2")
	v2.POST("/answer", s.handleAnswer)
}

func (s *Server) metricsHandler() http.Handler {
	if s.deps.Gatherer != nil {
		return promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if snap := s.deps.Index.Current(); snap != nil {
		resp.IndexVersion = snap.Version()
	} else {
		resp.Status = "indexing"
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAnswer(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid answer request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt field is required")
	}

	resp, err := s.deps.Answers.Ask(c.Request().Context(), req.Prompt)
	if err != nil {
		return s.failure(c, "answer", resp, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleVerify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	resp, err := s.deps.Answers.Verify(c.Request().Context(), req.Query)
	if err != nil {
		return s.failure(c, "verify", resp, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	k := req.K
	if k <= 0 {
		k = query.DefaultTopK
	}

	candidates, err := s.deps.Retriever.Retrieve(c.Request().Context(), req.Query, k)
	if err != nil {
		return err
	}
	out := make([]RetrievedChunk, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, RetrievedChunk{
			Text:  cand.Chunk.Text,
			Score: cand.Score,
			Metadata: ChunkMetadata{
				ChunkID:     cand.Chunk.ID,
				ArticleKey:  cand.Chunk.ArticleKey,
				Title:       cand.Chunk.Title,
				URL:         cand.Chunk.URL,
				Ordinal:     cand.Chunk.Ordinal,
				LexicalRank: cand.LexicalRank,
				VectorRank:  cand.VectorRank,
			},
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleStatistics(c echo.Context) error {
	var resp StatisticsResponse
	if snap := s.deps.Index.Current(); snap != nil {
		st := snap.Stats()
		resp.FileCount = st.Documents
		resp.Chunks = st.Chunks
		resp.Version = st.Version
		resp.LastIndexed = st.BuiltAt.Unix()
	}
	if s.deps.Corpus != nil {
		st, err := s.deps.Corpus.Stat(c.Request().Context())
		if err != nil {
			s.logger.Warn("corpus stat failed", zap.Error(err))
		} else if !st.LastModified.IsZero() {
			resp.LastModified = st.LastModified.Unix()
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	snap := s.deps.Index.Current()
	if snap == nil {
		return c.JSON(http.StatusOK, []index.DocumentInfo{})
	}
	return c.JSON(http.StatusOK, snap.Documents())
}

func (s *Server) handleRefresh(c echo.Context) error {
	if s.deps.Refresher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "refresh is not enabled")
	}
	res, err := s.deps.Refresher.Collect(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RefreshResponse{
		RunID:   res.RunID,
		Pages:   res.Pages,
		Skipped: res.Skipped,
		Added:   res.Added(),
		Records: res.Records,
	})
}

// failure writes a rendered failure with the status of its error kind.
func (s *Server) failure(c echo.Context, op string, resp query.Response, err error) error {
	status := StatusFor(err)
	logging.FromContext(c.Request().Context()).Warn(c.Request().Context(), op+" failed",
		zap.Int("status", status),
		zap.String("kind", string(errs.KindOf(err))),
		zap.Error(err))
	if resp.Response == "" {
		resp.Response = err.Error()
	}
	return c.JSON(status, resp)
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, query.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errs.KindOf(err) == errs.KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	log := logging.FromZap(logger)
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := StatusFor(err)
		msg := http.StatusText(status)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprint(he.Message)
		} else {
			log.Error(c.Request().Context(), "request failed", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		}
		if werr := c.JSON(status, ErrorResponse{Error: msg}); werr != nil {
			log.Debug(c.Request().Context(), "failed to write error response", zap.Error(werr))
		}
	}
}

// requestLogger starts the request span and stores the request ID and a
// logger in the request context, so log entries carry request.id and
// trace_id.
func requestLogger(log *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := otel.Tracer(instrumentationName).Start(ctx, "http.request",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.target", req.URL.Path),
				))
			defer span.End()

			ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
			ctx = logging.WithLogger(ctx, log)
			c.SetRequest(req.WithContext(ctx))

			if err := next(c); err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			span.SetAttributes(
				attribute.String("http.route", c.Path()),
				attribute.Int("http.status_code", status),
			)

			log.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// requestTimeout bounds each request's context.
func requestTimeout(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
