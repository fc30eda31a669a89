package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbot/internal/chunker"
	"ragbot/internal/domain"
	"ragbot/internal/embedding/tfidf"
	"ragbot/internal/llm"
	convmem "ragbot/internal/memory"
	"ragbot/internal/retriever"
	vecmem "ragbot/internal/vectorstore/memory"
)

var triggerKeywords = []string{
	"policy", "refund", "price", "cost", "services",
	"terms", "scope", "contract", "what does", "list",
}

type stubLoader struct {
	pages map[string][]domain.Page
	calls atomic.Int32
}

func (l *stubLoader) Load(path string) ([]domain.Page, error) {
	l.calls.Add(1)
	pages, ok := l.pages[path]
	if !ok {
		return nil, fmt.Errorf("%s could not be opened: no such file", path)
	}
	return pages, nil
}

type scriptedModel struct {
	answer string
	err    error
	calls  atomic.Int32
	last   []domain.Message
}

func (m *scriptedModel) Chat(_ context.Context, messages []domain.Message) (string, error) {
	m.calls.Add(1)
	m.last = messages
	return m.answer, m.err
}

// emptyStore indexes fine but never finds anything.
type emptyStore struct{}

func (emptyStore) IsPopulated(context.Context, string) (bool, error) { return false, nil }
func (emptyStore) Index(context.Context, string, []domain.Chunk, [][]float64) error {
	return nil
}
func (emptyStore) Search(context.Context, string, []float64, int) ([]domain.SearchResult, error) {
	return nil, nil
}

func policyPages() map[string][]domain.Page {
	return map[string][]domain.Page{
		"docs/refunds.pdf": {
			{Source: "docs/refunds.pdf", Number: 0, Text: "Refund policy: purchases are refunded within thirty days of delivery. Refund requests go through the billing portal."},
			{Source: "docs/refunds.pdf", Number: 1, Text: "Shipping is free for orders above fifty euros. Delivery takes three business days inside the EU."},
		},
	}
}

func newTestService(t *testing.T, loader DocumentLoader, store domain.VectorStore, model domain.ChatModel) (*Service, *convmem.Manager) {
	t.Helper()
	mem := convmem.NewManager(filepath.Join(t.TempDir(), "memory.json"), nil)
	retr := retriever.NewManager(store, tfidf.NewEmbedder(), 5, nil)
	return NewService(loader, chunker.NewWindowChunker(200, 50), retr, mem,
		model, llm.NewPrompt(""), triggerKeywords, nil), mem
}

func TestAnswerValidation(t *testing.T) {
	loader := &stubLoader{}
	model := &scriptedModel{answer: "unused"}
	svc, _ := newTestService(t, loader, vecmem.NewStore(), model)

	cases := []struct {
		name string
		req  Request
		want string
	}{
		{"no files", Request{Query: "anything"}, "Upload at least one PDF."},
		{"blank query", Request{Files: []string{"a.pdf"}, Query: "   "}, "Ask a question."},
		{"over-length query", Request{Files: []string{"a.pdf"}, Query: strings.Repeat("x", MaxQueryLength+1)},
			"Question too long (max 5000 characters)."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := svc.Answer(context.Background(), tc.req)
			assert.Equal(t, tc.want, resp.Answer)
		})
	}
	assert.Zero(t, loader.calls.Load(), "validation failures must not touch documents")
	assert.Zero(t, model.calls.Load(), "validation failures must not invoke the model")
}

func TestValidateCountsCharactersNotBytes(t *testing.T) {
	files := []string{"a.pdf"}

	// 2000 characters, 6000 bytes: well within the limit.
	assert.NoError(t, Validate(Request{Files: files, Query: strings.Repeat("問", 2000)}))

	assert.ErrorIs(t, Validate(Request{Files: files, Query: strings.Repeat("問", MaxQueryLength+1)}), ErrQueryTooLong)
}

func TestAnswerEndToEnd(t *testing.T) {
	loader := &stubLoader{pages: policyPages()}
	model := &scriptedModel{answer: "Purchases are refunded within thirty days."}
	svc, _ := newTestService(t, loader, vecmem.NewStore(), model)

	state := &State{}
	resp := svc.Answer(context.Background(), Request{
		Files: []string{"docs/refunds.pdf"},
		Query: "What is the refund policy?",
		State: state,
	})

	assert.Contains(t, resp.Answer, "Purchases are refunded within thirty days.")
	assert.Contains(t, resp.Answer, "Sources & Citations")
	assert.Contains(t, resp.Answer, "[1] refunds.pdf")
	assert.Equal(t, "What is the refund policy?", resp.Query)
	assert.True(t, strings.HasPrefix(state.SessionID, "session-"), "session id assigned: %q", state.SessionID)

	require.NotEmpty(t, model.last)
	assert.Equal(t, domain.RoleSystem, model.last[0].Role)
	assert.Contains(t, model.last[1].Content, "Refund policy")
}

func TestAnswerSessionReusedAcrossQueries(t *testing.T) {
	loader := &stubLoader{pages: policyPages()}
	model := &scriptedModel{answer: "ok"}
	svc, _ := newTestService(t, loader, vecmem.NewStore(), model)

	state := &State{}
	req := Request{Files: []string{"docs/refunds.pdf"}, Query: "refund terms please", State: state}
	svc.Answer(context.Background(), req)
	first := state.SessionID

	svc.Answer(context.Background(), req)
	assert.Equal(t, first, state.SessionID)

	// Second call carries the first turn as history.
	assert.GreaterOrEqual(t, len(model.last), 5)
}

func TestAnswerNonTriggerQueryOmitsCitations(t *testing.T) {
	loader := &stubLoader{pages: policyPages()}
	model := &scriptedModel{answer: "Three business days."}
	svc, _ := newTestService(t, loader, vecmem.NewStore(), model)

	resp := svc.Answer(context.Background(), Request{
		Files: []string{"docs/refunds.pdf"},
		Query: "How long is delivery inside the EU?",
		State: &State{},
	})

	assert.Equal(t, "Three business days.", resp.Answer)
	assert.NotContains(t, resp.Answer, "Sources & Citations")
}

func TestAnswerNoResultsShortCircuits(t *testing.T) {
	loader := &stubLoader{pages: policyPages()}
	model := &scriptedModel{answer: "unused"}
	svc, mem := newTestService(t, loader, emptyStore{}, model)

	state := &State{}
	resp := svc.Answer(context.Background(), Request{
		Files:            []string{"docs/refunds.pdf"},
		Query:            "refund policy",
		State:            state,
		PersistentMemory: true,
	})

	assert.Equal(t, "No relevant information found.", resp.Answer)
	assert.Zero(t, model.calls.Load(), "empty retrieval must not invoke the model")
	assert.Empty(t, state.SessionID, "no session is started for an empty result")
	assert.Empty(t, mem.LoadPersistentStore(), "no memory is written for an empty result")
}

func TestAnswerPersistentMemoryRecordsTurn(t *testing.T) {
	loader := &stubLoader{pages: policyPages()}
	model := &scriptedModel{answer: "Thirty days."}
	svc, mem := newTestService(t, loader, vecmem.NewStore(), model)

	state := &State{}
	svc.Answer(context.Background(), Request{
		Files:            []string{"docs/refunds.pdf"},
		Query:            "How many days for a refund?",
		State:            state,
		PersistentMemory: true,
	})

	store := mem.LoadPersistentStore()
	require.Contains(t, store, state.SessionID)
	require.Len(t, store[state.SessionID], 1)
	assert.Equal(t, "How many days for a refund?", store[state.SessionID][0].User)
	assert.Equal(t, "Thirty days.", store[state.SessionID][0].Bot)
}

func TestAnswerModelFailureSurfaced(t *testing.T) {
	loader := &stubLoader{pages: policyPages()}
	model := &scriptedModel{err: errors.New("backend unavailable")}
	svc, _ := newTestService(t, loader, vecmem.NewStore(), model)

	resp := svc.Answer(context.Background(), Request{
		Files: []string{"docs/refunds.pdf"},
		Query: "refund policy",
		State: &State{},
	})

	assert.True(t, strings.HasPrefix(resp.Answer, "Error processing request: "), resp.Answer)
	assert.Contains(t, resp.Answer, "backend unavailable")
}

func TestAnswerUnreadableFileSurfaced(t *testing.T) {
	loader := &stubLoader{pages: policyPages()}
	svc, _ := newTestService(t, loader, vecmem.NewStore(), &scriptedModel{answer: "unused"})

	resp := svc.Answer(context.Background(), Request{
		Files: []string{"missing.pdf"},
		Query: "refund policy",
		State: &State{},
	})

	assert.Contains(t, resp.Answer, "Error processing request: ")
	assert.Contains(t, resp.Answer, "missing.pdf")
}
