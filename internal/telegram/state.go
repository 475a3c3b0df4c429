package telegram

import (
	"sync"

	"github.com/digkill/ghola/internal/models"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingStyle
	StateAwaitingRatio
	StateAwaitingName
)

type Session struct {
	State       SessionState
	Style       models.StyleTag
	AspectRatio models.AspectRatioTag
	Busy        bool
}

func defaultSession() Session {
	return Session{
		State:       StateIdle,
		Style:       models.StyleRealistic,
		AspectRatio: models.AspectLandscape,
	}
}

type StateManager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[int64]*Session),
	}
}

// Get returns a copy of the chat's session.
func (m *StateManager) Get(chatID int64) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[chatID]; ok {
		return *session
	}
	return defaultSession()
}

func (m *StateManager) Update(chatID int64, fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.session(chatID))
}

// Reset clears the flow state but keeps the chat's style and ratio choices.
func (m *StateManager) Reset(chatID int64) {
	m.Update(chatID, func(s *Session) {
		s.State = StateIdle
	})
}

// TryBegin marks the chat busy. It fails while a generation is already running.
func (m *StateManager) TryBegin(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(chatID)
	if s.Busy {
		return false
	}
	s.Busy = true
	return true
}

func (m *StateManager) Finish(chatID int64) {
	m.Update(chatID, func(s *Session) {
		s.Busy = false
		s.State = StateIdle
	})
}

// session must be called with mu held.
func (m *StateManager) session(chatID int64) *Session {
	s, ok := m.sessions[chatID]
	if !ok {
		fresh := defaultSession()
		s = &fresh
		m.sessions[chatID] = s
	}
	return s
}
