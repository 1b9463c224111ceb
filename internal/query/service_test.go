package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/newsrag/internal/agent"
	"github.com/fyrsmithlabs/newsrag/internal/answer"
	"github.com/fyrsmithlabs/newsrag/internal/chunking"
	"github.com/fyrsmithlabs/newsrag/internal/corpus"
	"github.com/fyrsmithlabs/newsrag/internal/embeddings"
	"github.com/fyrsmithlabs/newsrag/internal/errs"
	"github.com/fyrsmithlabs/newsrag/internal/index"
	"github.com/fyrsmithlabs/newsrag/internal/retrieval"
)

// groundedModel answers only from what the prompt's sources say.
type groundedModel struct {
	calls int
	err   error
}

func (m *groundedModel) Name() string { return "grounded" }

func (m *groundedModel) Generate(_ context.Context, _, prompt string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	_, question, _ := strings.Cut(prompt, "\nQuery: ")
	if strings.Contains(prompt, "Company X acquired by Company Y") && strings.Contains(question, "acquired") {
		return "Company Y acquired Company X (Company X acquired by Company Y).", nil
	}
	return answer.NoInformationText, nil
}

type stubSearcher struct{ link string }

func (s stubSearcher) Search(context.Context, string) (string, error) { return s.link, nil }

type stubScraper struct{ text string }

func (s stubScraper) Scrape(context.Context, string) (string, error) { return s.text, nil }

type verdictModel struct{}

func (verdictModel) Name() string { return "gemini-2.0-flash" }
func (verdictModel) Generate(context.Context, string, string) (string, error) {
	return "The claim is authentic.", nil
}

type pipeline struct {
	store *index.Store
	model *groundedModel
}

func newPipeline(t *testing.T, c corpus.Corpus, verifier Verifier) (*Service, *pipeline) {
	t.Helper()
	ctx := context.Background()

	chunker, err := chunking.New(chunking.EstimateTokenizer{}, 400)
	require.NoError(t, err)
	embedder, err := embeddings.NewHashProvider(256)
	require.NoError(t, err)
	store, err := index.NewStore(chunker, embedder, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.Index(ctx, c)
	require.NoError(t, err)

	model := &groundedModel{}
	gen, err := answer.NewGenerator(model, nil)
	require.NoError(t, err)

	var opts []Option
	if verifier != nil {
		opts = append(opts, WithVerifier(verifier))
	}
	svc, err := NewService(retrieval.NewRetriever(store, embedder, nil), gen, nil, opts...)
	require.NoError(t, err)
	return svc, &pipeline{store: store, model: model}
}

func newVerifier(t *testing.T, link, text string) *agent.Agent {
	t.Helper()
	a, err := agent.New(stubSearcher{link: link}, stubScraper{text: text}, verdictModel{}, nil)
	require.NoError(t, err)
	return a
}

func acquisitionCorpus() corpus.Corpus {
	r, _ := corpus.Normalize(corpus.RawArticle{
		Title:      "Company X acquired by Company Y",
		URL:        "https://news.example/acquisition",
		SourceName: "Wire",
		Content:    "Company X acquired by Company Y, announced 2024-01-01",
	})
	return corpus.Corpus{r}
}

func TestAsk_GroundedAnswer(t *testing.T) {
	svc, p := newPipeline(t, acquisitionCorpus(), nil)

	resp, err := svc.Ask(context.Background(), "Who acquired Company X?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, resp.Outcome)
	assert.Contains(t, resp.Response, "Company Y")
	assert.NotEqual(t, answer.NoInformationText, resp.Response)
	assert.Equal(t, []string{"https://news.example/acquisition"}, resp.Sources)
	assert.Equal(t, 1, p.model.calls)
}

func TestAsk_EmptyCorpus(t *testing.T) {
	t.Run("without fallback", func(t *testing.T) {
		svc, p := newPipeline(t, nil, nil)
		resp, err := svc.Ask(context.Background(), "Did it rain on Mars?")
		require.NoError(t, err)
		assert.Equal(t, "No information found.", resp.Response)
		assert.Equal(t, OutcomeNoInformation, resp.Outcome)
		assert.Zero(t, p.model.calls)
	})

	t.Run("fallback finds nothing", func(t *testing.T) {
		svc, _ := newPipeline(t, nil, newVerifier(t, "", ""))
		resp, err := svc.Ask(context.Background(), "Did it rain on Mars?")
		require.NoError(t, err)
		assert.Equal(t, "No results found.", resp.Response)
		assert.Equal(t, OutcomeNoResults, resp.Outcome)
	})

	t.Run("fallback verifies", func(t *testing.T) {
		svc, _ := newPipeline(t, nil, newVerifier(t, "https://web.example/mars", "Rain on Mars is not possible."))
		resp, err := svc.Ask(context.Background(), "Did it rain on Mars?")
		require.NoError(t, err)
		assert.Equal(t, "The claim is authentic.", resp.Response)
		assert.Equal(t, OutcomeVerified, resp.Outcome)
		assert.Equal(t, "https://web.example/mars", resp.Source)
	})
}

func TestAsk_ModelSaysNoInformationEscalates(t *testing.T) {
	svc, p := newPipeline(t, acquisitionCorpus(), newVerifier(t, "", ""))

	resp, err := svc.Ask(context.Background(), "What did Company X announce about layoffs?")
	require.NoError(t, err)
	assert.Equal(t, "No results found.", resp.Response)
	assert.Equal(t, 1, p.model.calls)
}

func TestAsk_GenerationFailure(t *testing.T) {
	svc, p := newPipeline(t, acquisitionCorpus(), newVerifier(t, "https://unused", "unused"))
	p.model.err = errors.New("quota exceeded")

	resp, err := svc.Ask(context.Background(), "Who acquired Company X?")
	require.Error(t, err)
	assert.Equal(t, errs.KindGeneration, errs.KindOf(err))
	assert.Equal(t, OutcomeFailed, resp.Outcome)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	svc, _ := newPipeline(t, acquisitionCorpus(), nil)
	_, err := svc.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestVerify_WithoutVerifier(t *testing.T) {
	svc, _ := newPipeline(t, nil, nil)
	assert.False(t, svc.FallbackEnabled())

	resp, err := svc.Verify(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoResults, resp.Outcome)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, nil, nil)
	assert.Error(t, err)
}
