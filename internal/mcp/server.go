// Package mcp exposes the news question pipeline as MCP tools over stdio.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the query service directly.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/index"
	"github.com/fyrsmithlabs/newsrag/internal/query"
	"github.com/fyrsmithlabs/newsrag/internal/retrieval"
)

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

// Server serves the news tools.
type Server struct {
	mcp       *mcp.Server
	answers   Answerer
	retriever Retriever
	index     Snapshots
	metrics   *Metrics
	logger    *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "newsrag")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "newsrag",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server over the given components.
func NewServer(cfg *Config, answers Answerer, retriever Retriever, snapshots Snapshots) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if answers == nil {
		return nil, fmt.Errorf("answer service is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("index is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:       mcpServer,
		answers:   answers,
		retriever: retriever,
		index:     snapshots,
		metrics:   NewMetrics(cfg.Logger),
		logger:    cfg.Logger,
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
