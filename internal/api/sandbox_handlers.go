package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"sprint-academy/internal/content"
	"sprint-academy/internal/models"
	"sprint-academy/internal/sandbox"
	"sprint-academy/internal/visitor"
)

const maxCodeBytes = 512 << 10

// sandboxFor opens the sandbox of an unlocked lesson on its starter code.
func (h *ApiHandler) sandboxFor(w http.ResponseWriter, r *http.Request) (*visitor.Visitor, *sandbox.Session, models.Lesson, bool) {
	v, ok := h.current(w, r)
	if !ok {
		return nil, nil, models.Lesson{}, false
	}
	lesson, _, ok := h.openLesson(w, r, v, content.Options{})
	if !ok {
		return nil, nil, models.Lesson{}, false
	}
	if !lesson.HasSandbox() {
		respondWithError(w, http.StatusNotFound, "This lesson has no sandbox")
		return nil, nil, models.Lesson{}, false
	}
	return v, v.Sandboxes.Open(lesson.ID, lesson.InitialCode), lesson, true
}

func (h *ApiHandler) GetSandbox(w http.ResponseWriter, r *http.Request) {
	_, s, _, ok := h.sandboxFor(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, s.Snapshot())
}

// PutSandboxCode replaces the buffer with the raw request body.
func (h *ApiHandler) PutSandboxCode(w http.ResponseWriter, r *http.Request) {
	_, s, _, ok := h.sandboxFor(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCodeBytes+1))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(body) > maxCodeBytes {
		respondWithError(w, http.StatusRequestEntityTooLarge, "Code is too large")
		return
	}
	s.SetCode(string(body))
	respondWithJSON(w, http.StatusOK, s.Snapshot())
}

type chatRequest struct {
	Open  *bool   `json:"open"`
	Draft *string `json:"draft"`
}

func (h *ApiHandler) PutSandboxChat(w http.ResponseWriter, r *http.Request) {
	_, s, _, ok := h.sandboxFor(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Open != nil {
		s.SetChatOpen(*req.Open)
	}
	if req.Draft != nil {
		s.SetDraft(*req.Draft)
	}
	respondWithJSON(w, http.StatusOK, s.Snapshot())
}

// GetSandboxPreview serves the rendered buffer as an isolated document.
func (h *ApiHandler) GetSandboxPreview(w http.ResponseWriter, r *http.Request) {
	_, s, _, ok := h.sandboxFor(w, r)
	if !ok {
		return
	}
	s.Preview().ServeHTTP(w, r)
}

// GetSandboxFrame returns the iframe markup that embeds the preview.
func (h *ApiHandler) GetSandboxFrame(w http.ResponseWriter, r *http.Request) {
	_, s, _, ok := h.sandboxFor(w, r)
	if !ok {
		return
	}
	src := strings.TrimSuffix(r.URL.Path, "/frame") + "/preview"
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, sandbox.Frame(src, s.Preview().Revision()))
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *ApiHandler) AskSandbox(w http.ResponseWriter, r *http.Request) {
	_, s, _, ok := h.sandboxFor(w, r)
	if !ok {
		return
	}
	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.AskAI(r.Context(), req.Question)
	respondWithJSON(w, http.StatusOK, s.Snapshot())
}

func (h *ApiHandler) ReviewSandbox(w http.ResponseWriter, r *http.Request) {
	_, s, _, ok := h.sandboxFor(w, r)
	if !ok {
		return
	}
	s.Review(r.Context())
	respondWithJSON(w, http.StatusOK, s.Snapshot())
}

// ResetSandbox restores the lesson's starter code.
func (h *ApiHandler) ResetSandbox(w http.ResponseWriter, r *http.Request) {
	_, s, lesson, ok := h.sandboxFor(w, r)
	if !ok {
		return
	}
	s.Reset(lesson.InitialCode)
	respondWithJSON(w, http.StatusOK, s.Snapshot())
}
