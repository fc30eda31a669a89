// Package memory maintains per-session conversation history in two tiers:
// an in-process runtime store and an optional JSON-backed persistent store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"ragbot/internal/domain"
)

// History is the runtime message sequence of one session. It is shared
// between calls and safe for concurrent use.
type History struct {
	mu       sync.Mutex
	messages []domain.Message
}

// Messages returns a copy of the accumulated messages in order.
func (h *History) Messages() []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// AddTurn appends a completed user/assistant exchange.
func (h *History) AddTurn(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages,
		domain.Message{Role: domain.RoleUser, Content: user},
		domain.Message{Role: domain.RoleAssistant, Content: assistant},
	)
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// PromptBuilder assembles the model messages from history, question and
// retrieved context.
type PromptBuilder interface {
	Build(history []domain.Message, question, contextText string) []domain.Message
}

// Manager owns both memory tiers. When persistence is requested the file
// store is the source of truth and the runtime tier is a lazily-hydrated
// cache of it.
type Manager struct {
	path   string
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*History

	// fileMu serializes every load-modify-store cycle on the persistent
	// file so near-simultaneous sessions cannot lose each other's turns.
	fileMu sync.Mutex
}

// NewManager creates a memory manager persisting to the given file path.
func NewManager(path string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		path:     path,
		logger:   logger,
		sessions: make(map[string]*History),
	}
}

// LoadPersistentStore reads the durable store. A missing, empty or corrupted
// file is treated as an empty store and never fails the caller; corrupted
// content is discarded on the next successful write.
func (m *Manager) LoadPersistentStore() map[string][]domain.Turn {
	data, err := os.ReadFile(m.path)
	if err != nil || len(data) == 0 {
		return map[string][]domain.Turn{}
	}
	store := map[string][]domain.Turn{}
	if err := json.Unmarshal(data, &store); err != nil {
		m.logger.Warn("persistent memory file corrupted, resetting", zap.Error(err))
		return map[string][]domain.Turn{}
	}
	return store
}

func (m *Manager) savePersistentStore(store map[string][]domain.Turn) error {
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// GetHistory returns the runtime history for the session, creating it if
// needed. In persistent mode the session is first ensured in the durable
// store and the runtime tier is hydrated from it once, replaying every
// stored turn in order.
func (m *Manager) GetHistory(sessionID string, persistent bool) (*History, error) {
	if persistent {
		if err := m.hydrate(sessionID); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.sessions[sessionID]
	if !ok {
		h = &History{}
		m.sessions[sessionID] = h
	}
	return h, nil
}

func (m *Manager) hydrate(sessionID string) error {
	m.fileMu.Lock()
	defer m.fileMu.Unlock()

	store := m.LoadPersistentStore()
	if _, ok := store[sessionID]; !ok {
		store[sessionID] = []domain.Turn{}
		if err := m.savePersistentStore(store); err != nil {
			return fmt.Errorf("creating persistent session entry: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; ok {
		return nil
	}
	h := &History{}
	for _, turn := range store[sessionID] {
		h.AddTurn(turn.User, turn.Bot)
	}
	m.sessions[sessionID] = h
	return nil
}

// SavePersistent appends the turn to the durable store in a serialized
// load-modify-store cycle.
func (m *Manager) SavePersistent(sessionID, userMsg, botMsg string) error {
	m.fileMu.Lock()
	defer m.fileMu.Unlock()

	store := m.LoadPersistentStore()
	store[sessionID] = append(store[sessionID], domain.Turn{User: userMsg, Bot: botMsg})
	if err := m.savePersistentStore(store); err != nil {
		return fmt.Errorf("saving persistent memory: %w", err)
	}
	return nil
}

// InvokeWithHistory runs the model call with the session's accumulated
// history injected into the prompt and, on success, records the new turn in
// the runtime tier. Durable persistence of the turn is a separate explicit
// step via SavePersistent, so callers control when a turn becomes durable.
func (m *Manager) InvokeWithHistory(ctx context.Context, model domain.ChatModel, prompt PromptBuilder, sessionID string, persistent bool, question, contextText string) (string, error) {
	history, err := m.GetHistory(sessionID, persistent)
	if err != nil {
		return "", err
	}
	messages := prompt.Build(history.Messages(), question, contextText)
	answer, err := model.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("model invocation: %w", err)
	}
	history.AddTurn(question, answer)
	return answer, nil
}
