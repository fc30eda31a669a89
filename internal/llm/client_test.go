package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbot/internal/domain"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Setenv("TEST_LLM_KEY", "secret")
	c, err := NewClient(Config{BaseURL: url, APIKeyEnv: "TEST_LLM_KEY", Model: "test-model", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClientMissingKey(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_LLM_KEY"})
	assert.Error(t, err)
}

func TestChat(t *testing.T) {
	var req struct {
		Model    string           `json:"model"`
		Messages []domain.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Write([]byte(`{"choices":[{"message":{"content":"the answer"}}]}`))
	}))
	defer srv.Close()

	answer, err := newTestClient(t, srv.URL).Chat(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "instructions"},
		{Role: domain.RoleUser, Content: "question"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 2)
}

func TestChatRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Chat(context.Background(), nil)
	require.Error(t, err)
	assert.EqualValues(t, 4, calls.Load())
}

func TestChatHonoursRetryAfterOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	start := time.Now()
	answer, err := newTestClient(t, srv.URL).Chat(context.Background(), nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.EqualValues(t, 2, calls.Load())
	assert.GreaterOrEqual(t, elapsed, time.Second, "Retry-After must be respected")
	assert.Less(t, elapsed, 1500*time.Millisecond, "backoff must not stack on top of Retry-After")
}

func TestChatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Chat(context.Background(), nil)
	assert.Error(t, err)
}

func TestPromptBuildOrder(t *testing.T) {
	p := NewPrompt("")
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "earlier question"},
		{Role: domain.RoleAssistant, Content: "earlier answer"},
	}
	msgs := p.Build(history, "current question", "excerpt text")

	require.Len(t, msgs, 5)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "excerpt text")
	assert.Equal(t, "earlier question", msgs[2].Content)
	assert.Equal(t, "earlier answer", msgs[3].Content)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "current question"}, msgs[4])
}

func TestLoadPromptDefault(t *testing.T) {
	p, err := LoadPrompt("")
	require.NoError(t, err)
	msgs := p.Build(nil, "q", "c")
	assert.NotEmpty(t, msgs[0].Content)
}
