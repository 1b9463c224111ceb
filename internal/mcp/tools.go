package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/newsrag/internal/index"
	"github.com/fyrsmithlabs/newsrag/internal/query"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "news_answer",
		Description: "Answer a question from the indexed news corpus. When the corpus has no answer the question is verified against the web instead.",
	}, s.handleAnswer)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "news_verify",
		Description: "Search the web for a news claim, read the top result and report whether the claim is authentic or fake.",
	}, s.handleVerify)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "news_retrieve",
		Description: "Return the news passages most relevant to a query, best first, without generating an answer.",
	}, s.handleRetrieve)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "news_statistics",
		Description: "Report the indexed corpus size and index version.",
	}, s.handleStatistics)
}

// instrument wraps a tool body with the invocation metrics.
func (s *Server) instrument(ctx context.Context, tool string) func(error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	return func(err error) {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// ===== ANSWER TOOLS =====

type questionInput struct {
	Question string `json:"question" jsonschema:"The question or news claim"`
}

type answerOutput struct {
	Response string   `json:"response" jsonschema:"The answer text"`
	Outcome  string   `json:"outcome" jsonschema:"answered, no_information, verified, no_results, no_content or failed"`
	Source   string   `json:"source,omitempty" jsonschema:"Web page a verification was based on"`
	Sources  []string `json:"sources,omitempty" jsonschema:"Articles a grounded answer was built from"`
}

func toAnswerOutput(r query.Response) answerOutput {
	return answerOutput{Response: r.Response, Outcome: r.Outcome, Source: r.Source, Sources: r.Sources}
}

func (s *Server) handleAnswer(ctx context.Context, _ *mcp.CallToolRequest, args questionInput) (*mcp.CallToolResult, answerOutput, error) {
	var toolErr error
	done := s.instrument(ctx, "news_answer")
	defer func() { done(toolErr) }()

	if strings.TrimSpace(args.Question) == "" {
		toolErr = query.ErrEmptyQuestion
		return nil, answerOutput{}, toolErr
	}
	resp, err := s.answers.Ask(ctx, args.Question)
	if err != nil {
		toolErr = fmt.Errorf("answer failed: %w", err)
		return nil, answerOutput{}, toolErr
	}
	return textResult(resp.Response), toAnswerOutput(resp), nil
}

func (s *Server) handleVerify(ctx context.Context, _ *mcp.CallToolRequest, args questionInput) (*mcp.CallToolResult, answerOutput, error) {
	var toolErr error
	done := s.instrument(ctx, "news_verify")
	defer func() { done(toolErr) }()

	if strings.TrimSpace(args.Question) == "" {
		toolErr = query.ErrEmptyQuestion
		return nil, answerOutput{}, toolErr
	}
	resp, err := s.answers.Verify(ctx, args.Question)
	if err != nil {
		toolErr = fmt.Errorf("verify failed: %w", err)
		return nil, answerOutput{}, toolErr
	}
	return textResult(resp.Response), toAnswerOutput(resp), nil
}

// ===== INDEX TOOLS =====

type retrieveInput struct {
	Query string `json:"query" jsonschema:"Search query"`
	K     int    `json:"k,omitempty" jsonschema:"Maximum passages to return (default: 6)"`
}

type passage struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type retrieveOutput struct {
	Passages []passage `json:"passages" jsonschema:"Passages, best first"`
	Count    int       `json:"count"`
}

func (s *Server) handleRetrieve(ctx context.Context, _ *mcp.CallToolRequest, args retrieveInput) (*mcp.CallToolResult, retrieveOutput, error) {
	var toolErr error
	done := s.instrument(ctx, "news_retrieve")
	defer func() { done(toolErr) }()

	if strings.TrimSpace(args.Query) == "" {
		toolErr = fmt.Errorf("query is required")
		return nil, retrieveOutput{}, toolErr
	}
	k := args.K
	if k <= 0 {
		k = query.DefaultTopK
	}

	candidates, err := s.retriever.Retrieve(ctx, args.Query, k)
	if err != nil {
		toolErr = fmt.Errorf("retrieve failed: %w", err)
		return nil, retrieveOutput{}, toolErr
	}

	out := retrieveOutput{Passages: make([]passage, 0, len(candidates))}
	var b strings.Builder
	for i, c := range candidates {
		out.Passages = append(out.Passages, passage{
			Title: c.Chunk.Title,
			URL:   c.Chunk.URL,
			Text:  c.Chunk.Text,
			Score: c.Score,
		})
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, c.Chunk.Title, c.Chunk.URL)
	}
	out.Count = len(out.Passages)
	if out.Count == 0 {
		b.WriteString("No passages found.")
	}
	return textResult(strings.TrimRight(b.String(), "\n")), out, nil
}

type statisticsInput struct{}

type statisticsOutput struct {
	Stats index.Stats `json:"stats"`
	Ready bool        `json:"ready" jsonschema:"Whether an index snapshot has been published"`
}

func (s *Server) handleStatistics(ctx context.Context, _ *mcp.CallToolRequest, _ statisticsInput) (*mcp.CallToolResult, statisticsOutput, error) {
	done := s.instrument(ctx, "news_statistics")
	defer done(nil)

	snap := s.index.Current()
	if snap == nil {
		return textResult("Index not built yet."), statisticsOutput{}, nil
	}
	st := snap.Stats()
	return textResult(fmt.Sprintf("Index v%d: %d articles, %d chunks", st.Version, st.Documents, st.Chunks)),
		statisticsOutput{Stats: st, Ready: true}, nil
}
