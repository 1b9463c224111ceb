package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	newshttp "github.com/fyrsmithlabs/newsrag/internal/http"
	"github.com/fyrsmithlabs/newsrag/internal/query"
)

var (
	// askServer is the base URL of the query server
	askServer string
	// askVerify skips the corpus and checks the claim against the web
	askVerify bool
	// askJSON prints the raw response
	askJSON bool
	// askTimeout bounds the whole request
	askTimeout time.Duration
)

var (
	questionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	answerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	answeredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a running newsrag server a question",
		Long: `Send a question to a running query server and print the answer.

Examples:
  # Ask about the corpus
  newsrag ask "Who acquired Company X?"

  # Check a claim against the web
  newsrag ask --verify "did elon musk sold twitter"

  # Use a different server
  newsrag ask --server http://localhost:9000 "What happened today?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
	cmd.Flags().StringVar(&askServer, "server", "http://localhost:8000", "newsrag server URL")
	cmd.Flags().BoolVar(&askVerify, "verify", false, "verify the claim against the web instead of the corpus")
	cmd.Flags().BoolVar(&askJSON, "json", false, "print the raw JSON response")
	cmd.Flags().DurationVar(&askTimeout, "timeout", 2*time.Minute, "request timeout")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}

	client := newAskClient(askServer, askTimeout)
	resp, err := ask(cmd.Context(), client, question, askVerify)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(out, render(question, resp))
	return nil
}

func newAskClient(server string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(server, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

// askReply decodes both a rendered answer and an error body.
type askReply struct {
	query.Response
	Error string `json:"error"`
}

// ask posts question to the answer or verify endpoint. A failure the server
// rendered as an answer is returned with its text.
func ask(ctx context.Context, client *resty.Client, question string, verify bool) (query.Response, error) {
	path := "/v1/pw_ai_answer"
	var body any = newshttp.AnswerRequest{Prompt: question}
	if verify {
		path = "/v1/verify"
		body = newshttp.VerifyRequest{Query: question}
	}

	var reply askReply
	resp, err := client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&reply).
		SetError(&reply).
		Post(path)
	if err != nil {
		return query.Response{}, fmt.Errorf("failed to connect to server: %w", err)
	}
	if resp.IsError() {
		if reply.Response.Response != "" {
			return reply.Response, nil
		}
		msg := reply.Error
		if msg == "" {
			msg = strings.TrimSpace(string(resp.Body()))
		}
		return query.Response{}, fmt.Errorf("server returned %d: %s", resp.StatusCode(), msg)
	}
	return reply.Response, nil
}

// render formats a response for the terminal.
func render(question string, resp query.Response) string {
	var b strings.Builder
	b.WriteString(questionStyle.Render("Q: " + question))
	b.WriteString("\n")
	b.WriteString(answerStyle.Render(resp.Response))
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Outcome: "))
	b.WriteString(outcomeStyle(resp.Outcome).Render(resp.Outcome))
	if resp.Cached {
		b.WriteString(dimStyle.Render(" (cached)"))
	}

	if resp.Source != "" {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Source: "))
		b.WriteString(dimStyle.Render(resp.Source))
	}
	for i, src := range resp.Sources {
		b.WriteString("\n")
		if i == 0 {
			b.WriteString(labelStyle.Render("Sources:"))
			b.WriteString("\n")
		}
		b.WriteString(dimStyle.Render("  - " + src))
	}
	return b.String()
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case query.OutcomeAnswered, query.OutcomeVerified:
		return answeredStyle
	case query.OutcomeFailed:
		return errorStyle
	default:
		return warningStyle
	}
}
