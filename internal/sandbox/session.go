package sandbox

import (
	"context"
	"strings"
	"sync"

	"sprint-academy/internal/logger"
	"sprint-academy/internal/models"
)

// FallbackReply is shown when the assistant fails or answers nothing.
const FallbackReply = "Sorry, I couldn't get an answer right now. Please try again in a moment."

// ReviewPrompt is sent by the review action instead of user text.
const ReviewPrompt = "Review this code. Point out bugs, accessibility and semantic HTML problems, CSS issues and JavaScript mistakes, then suggest concrete improvements with short examples."

// Assistant answers a prompt about the current code.
type Assistant interface {
	Assist(ctx context.Context, code, prompt string) (string, error)
}

// State is a copy of a session's observable state.
type State struct {
	Code       string               `json:"code"`
	Draft      string               `json:"draft"`
	Transcript []models.ChatMessage `json:"transcript"`
	Typing     bool                 `json:"typing"`
	ChatOpen   bool                 `json:"chat_open"`
	Revision   uint64               `json:"revision"`
}

// Session is one sandbox: the code buffer driving the preview plus the AI
// chat transcript. AI requests are numbered; a reply that is older than the
// latest issued request is dropped.
type Session struct {
	assistant Assistant
	preview   *Preview
	log       *logger.Logger

	mu         sync.Mutex
	initial    string
	code       string
	draft      string
	transcript []models.ChatMessage
	typing     bool
	chatOpen   bool
	seq        uint64
}

// NewSession starts a sandbox on initialCode.
func NewSession(initialCode string, assistant Assistant, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	s := &Session{
		assistant: assistant,
		preview:   &Preview{},
		log:       log.With("component", "sandbox"),
		initial:   initialCode,
		code:      initialCode,
	}
	s.preview.Render(initialCode)
	return s
}

// Preview returns the session's render surface.
func (s *Session) Preview() *Preview { return s.preview }

// InitialCode returns the code the session was last reset to.
func (s *Session) InitialCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initial
}

// SetCode replaces the buffer and re-renders the preview before returning.
func (s *Session) SetCode(code string) {
	s.mu.Lock()
	s.code = code
	s.preview.Render(code)
	s.mu.Unlock()
}

// Code returns the buffer.
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// SetDraft stores the unsent chat input.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// SetChatOpen shows or hides the chat panel.
func (s *Session) SetChatOpen(open bool) {
	s.mu.Lock()
	s.chatOpen = open
	s.mu.Unlock()
}

// AskAI sends question with the current buffer. A blank question is
// ignored and reports false.
func (s *Session) AskAI(ctx context.Context, question string) bool {
	question = strings.TrimSpace(question)
	if question == "" {
		return false
	}
	s.ask(ctx, question, question, false)
	return true
}

// Review asks for a review of the current buffer and opens the chat.
func (s *Session) Review(ctx context.Context) {
	s.ask(ctx, "Review my code", ReviewPrompt, true)
}

func (s *Session) ask(ctx context.Context, shown, prompt string, openChat bool) {
	s.mu.Lock()
	s.transcript = append(s.transcript, models.ChatMessage{Role: models.RoleUser, Text: shown})
	s.draft = ""
	s.typing = true
	if openChat {
		s.chatOpen = true
	}
	s.seq++
	ticket := s.seq
	code := s.code
	s.mu.Unlock()

	reply, err := s.assistant.Assist(ctx, code, prompt)
	reply = strings.TrimSpace(reply)
	if err != nil {
		s.log.Warn("assistant request failed", "error", err)
	}
	if err != nil || reply == "" {
		reply = FallbackReply
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket != s.seq {
		s.log.Debug("dropping superseded assistant reply", "ticket", ticket, "latest", s.seq)
		return
	}
	s.transcript = append(s.transcript, models.ChatMessage{Role: models.RoleModel, Text: reply})
	s.typing = false
}

// Reset restarts the session on initialCode: the transcript is cleared and
// outstanding replies are dropped.
func (s *Session) Reset(initialCode string) {
	s.mu.Lock()
	s.initial = initialCode
	s.code = initialCode
	s.draft = ""
	s.transcript = nil
	s.typing = false
	s.seq++
	s.preview.Render(initialCode)
	s.mu.Unlock()
}

// Snapshot copies the observable state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	transcript := make([]models.ChatMessage, len(s.transcript))
	copy(transcript, s.transcript)
	return State{
		Code:       s.code,
		Draft:      s.draft,
		Transcript: transcript,
		Typing:     s.typing,
		ChatOpen:   s.chatOpen,
		Revision:   s.preview.Revision(),
	}
}
