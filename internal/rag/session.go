package rag

import (
	"slices"
	"sync"
	"time"

	"docqa/internal/helper"
	"docqa/internal/models"
)

// Session holds the per-conversation state: model choice, RAG toggle and
// history. Only the pipeline appends to History.
type Session struct {
	ID         string
	Model      string
	RAGEnabled bool
	History    []models.Turn
	CreatedAt  time.Time

	allowed []string
	mu      sync.Mutex
	// asking serializes queries; mu is only held while fields are read or written
	asking sync.Mutex
}

// SessionView is a copy of a session that is safe to read and encode.
type SessionView struct {
	ID         string        `json:"id"`
	Model      string        `json:"model"`
	RAGEnabled bool          `json:"rag_enabled"`
	History    []models.Turn `json:"history"`
	CreatedAt  time.Time     `json:"created_at"`
}

// NewSession starts a conversation. allowed restricts SetModel; empty allows any model.
func NewSession(model string, ragEnabled bool, allowed []string) (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:         id,
		RAGEnabled: ragEnabled,
		CreatedAt:  time.Now(),
		allowed:    allowed,
	}
	if err := s.setModel(model); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) SetModel(model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setModel(model)
}

func (s *Session) setModel(model string) error {
	if model == "" {
		return models.Errorf(models.ErrConfiguration, "set model", "model name is empty")
	}
	if len(s.allowed) > 0 && !slices.Contains(s.allowed, model) {
		return models.Errorf(models.ErrConfiguration, "set model", "model %q is not one of %v", model, s.allowed)
	}
	s.Model = model
	return nil
}

func (s *Session) SetRAGEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RAGEnabled = enabled
}

func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = nil
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		ID:         s.ID,
		Model:      s.Model,
		RAGEnabled: s.RAGEnabled,
		History:    slices.Clone(s.History),
		CreatedAt:  s.CreatedAt,
	}
}

// Greeting is the opening assistant message. It is shown, not stored in history.
func Greeting(ragEnabled, indexLoaded bool) string {
	switch {
	case !ragEnabled:
		return models.GreetingDirect
	case indexLoaded:
		return models.GreetingIndexLoaded
	default:
		return models.GreetingNoIndex
	}
}

// SessionManager keeps the live sessions of a server.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: map[string]*Session{}}
}

func (m *SessionManager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
