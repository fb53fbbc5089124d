package sandbox

import (
	"sync"

	"sprint-academy/internal/logger"
)

// Registry keeps one session per lesson for a visitor.
type Registry struct {
	assistant Assistant
	log       *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(assistant Assistant, log *logger.Logger) *Registry {
	return &Registry{assistant: assistant, log: log, sessions: make(map[string]*Session)}
}

// Open returns the lesson's session. A changed initial code resets it.
func (r *Registry) Open(lessonID, initialCode string) *Session {
	r.mu.Lock()
	s, ok := r.sessions[lessonID]
	if !ok {
		s = NewSession(initialCode, r.assistant, r.log)
		r.sessions[lessonID] = s
	}
	r.mu.Unlock()
	if ok && s.InitialCode() != initialCode {
		s.Reset(initialCode)
	}
	return s
}

// Get returns an existing session.
func (r *Registry) Get(lessonID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[lessonID]
	return s, ok
}

// Close drops the lesson's session; its transcript is discarded.
func (r *Registry) Close(lessonID string) {
	r.mu.Lock()
	delete(r.sessions, lessonID)
	r.mu.Unlock()
}
