package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"sprint-academy/internal/ai"
	"sprint-academy/internal/apiclient"
	"sprint-academy/internal/auth"
	"sprint-academy/internal/courses"
	"sprint-academy/internal/logger"
	"sprint-academy/internal/payments"
	"sprint-academy/internal/visitor"
)

// OAuth is the identity provider as the handlers need it.
type OAuth interface {
	auth.IdentityProvider
	AuthCodeURL(state, verifier string) string
}

// ImageAI powers the interactive image lessons.
type ImageAI interface {
	AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
	EditImage(ctx context.Context, image []byte, mimeType, instruction string) (ai.Image, error)
}

// ApiHandler serves the BFF endpoints.
type ApiHandler struct {
	Visitors *visitor.Manager
	// OAuth is nil when no identity provider is configured.
	OAuth OAuth
	// Images is nil when Gemini is not configured.
	Images ImageAI
	Log    *logger.Logger

	// callback tuning, overridden in tests
	callbackOpts auth.Options
}

func NewApiHandler(visitors *visitor.Manager, oauth OAuth, images ImageAI, log *logger.Logger) *ApiHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ApiHandler{Visitors: visitors, OAuth: oauth, Images: images, Log: log.With("component", "api")}
}

// Mount registers the auth pages and the /app/api endpoints.
func (h *ApiHandler) Mount(r *mux.Router) {
	pages := r.PathPrefix("/auth").Subrouter()
	pages.Use(h.Visitors.Middleware)
	pages.HandleFunc("/login", h.OAuthStart).Methods("GET")
	pages.HandleFunc("/callback", h.OAuthCallback).Methods("GET")

	apiRouter := r.PathPrefix("/app/api").Subrouter()
	apiRouter.Use(h.Visitors.Middleware)
	apiRouter.HandleFunc("/auth/login", h.Login).Methods("POST")
	apiRouter.HandleFunc("/auth/register", h.Register).Methods("POST")
	apiRouter.HandleFunc("/auth/logout", h.Logout).Methods("POST")
	apiRouter.HandleFunc("/courses", h.GetCourses).Methods("GET")
	apiRouter.HandleFunc("/courses/{course_id}", h.GetCourse).Methods("GET")
	apiRouter.HandleFunc("/courses/{course_id}/lessons", h.GetLessons).Methods("GET")
	apiRouter.HandleFunc("/courses/{course_id}/feedback", h.GetFeedback).Methods("GET")

	s := apiRouter.PathPrefix("/").Subrouter()
	s.Use(RequireUser)
	s.HandleFunc("/me", h.Me).Methods("GET")
	s.HandleFunc("/me/consent", h.AcceptConsent).Methods("POST")
	s.HandleFunc("/progress", h.GetProgressBatch).Methods("GET")
	s.HandleFunc("/courses/{course_id}/progress", h.GetProgress).Methods("GET")
	s.HandleFunc("/courses/{course_id}/progress", h.PutProgress).Methods("PUT")
	s.HandleFunc("/courses/{course_id}/progress", h.PatchProgress).Methods("PATCH")
	s.HandleFunc("/courses/{course_id}/resume", h.GetResume).Methods("GET")
	s.HandleFunc("/courses/{course_id}/quota", h.GetQuota).Methods("GET")
	s.HandleFunc("/courses/{course_id}/feedback", h.PostFeedback).Methods("POST")
	s.HandleFunc("/courses/{course_id}/lessons/{lesson_id}/content", h.GetLessonContent).Methods("GET")

	lesson := s.PathPrefix("/courses/{course_id}/lessons/{lesson_id}").Subrouter()
	lesson.HandleFunc("/sandbox", h.GetSandbox).Methods("GET")
	lesson.HandleFunc("/sandbox/code", h.PutSandboxCode).Methods("PUT")
	lesson.HandleFunc("/sandbox/chat", h.PutSandboxChat).Methods("PUT")
	lesson.HandleFunc("/sandbox/preview", h.GetSandboxPreview).Methods("GET")
	lesson.HandleFunc("/sandbox/frame", h.GetSandboxFrame).Methods("GET")
	lesson.HandleFunc("/sandbox/ask", h.AskSandbox).Methods("POST")
	lesson.HandleFunc("/sandbox/review", h.ReviewSandbox).Methods("POST")
	lesson.HandleFunc("/sandbox/reset", h.ResetSandbox).Methods("POST")
	lesson.HandleFunc("/image/analyze", h.AnalyzeImage).Methods("POST")
	lesson.HandleFunc("/image/edit", h.EditImage).Methods("POST")

	s.HandleFunc("/payments", h.StartPayment).Methods("POST")
	s.HandleFunc("/payments/sync", h.SyncPayment).Methods("POST")
	s.HandleFunc("/purchases", h.GetPurchases).Methods("GET")
}

func (h *ApiHandler) current(w http.ResponseWriter, r *http.Request) (*visitor.Visitor, bool) {
	v, ok := visitor.FromContext(r.Context())
	if !ok {
		h.Log.Error("handler mounted without visitor middleware", "path", r.URL.Path)
		respondWithError(w, http.StatusInternalServerError, "Session unavailable")
		return nil, false
	}
	return v, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// respondWithFailure maps domain and backend errors onto HTTP answers.
func (h *ApiHandler) respondWithFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		apiErr     *apiclient.APIError
		gateway    *payments.GatewayError
		validation validator.ValidationErrors
	)
	switch {
	case errors.As(err, &gateway):
		respondWithError(w, http.StatusBadGateway, payments.RetryMessage)
	case errors.Is(err, payments.ErrOfferNotAccepted):
		respondWithError(w, http.StatusBadRequest, "Please accept the offer to continue")
	case errors.Is(err, payments.ErrCourseRequired):
		respondWithError(w, http.StatusBadRequest, "Course is required")
	case errors.Is(err, payments.ErrOrderRequired):
		respondWithError(w, http.StatusBadRequest, "Order is required")
	case errors.Is(err, courses.ErrCourseNotFound):
		respondWithError(w, http.StatusNotFound, "Not found")
	case errors.As(err, &validation):
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
	case errors.As(err, &apiErr):
		code := apiErr.Status
		if code >= http.StatusInternalServerError || code < http.StatusBadRequest {
			code = http.StatusBadGateway
		}
		respondWithError(w, code, apiErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "The server took too long to answer")
	default:
		h.Log.Error("request failed", "path", r.URL.Path, "error", err)
		respondWithError(w, http.StatusBadGateway, "Something went wrong. Please try again.")
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
