package api

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"sprint-academy/internal/content"
	"sprint-academy/internal/models"
)

const maxImageBytes = 8 << 20

// readImageForm pulls the "image" file and "prompt" field out of a
// multipart upload for an image lesson of the given type.
func (h *ApiHandler) readImageForm(w http.ResponseWriter, r *http.Request, want models.LessonType) ([]byte, string, string, bool) {
	v, ok := h.current(w, r)
	if !ok {
		return nil, "", "", false
	}
	if h.Images == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Image assistant is not configured")
		return nil, "", "", false
	}
	lesson, _, ok := h.openLesson(w, r, v, content.Options{})
	if !ok {
		return nil, "", "", false
	}
	if lesson.Type != want {
		respondWithError(w, http.StatusBadRequest, "This lesson does not accept images")
		return nil, "", "", false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid upload")
		return nil, "", "", false
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Image is required")
		return nil, "", "", false
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil || len(data) == 0 {
		respondWithError(w, http.StatusBadRequest, "Image is required")
		return nil, "", "", false
	}
	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		respondWithError(w, http.StatusUnsupportedMediaType, "Only images are accepted")
		return nil, "", "", false
	}
	return data, mimeType, strings.TrimSpace(r.FormValue("prompt")), true
}

// AnalyzeImage describes an uploaded picture for interactive-analyze lessons.
func (h *ApiHandler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	data, mimeType, prompt, ok := h.readImageForm(w, r, models.LessonInteractiveAnalyze)
	if !ok {
		return
	}
	if prompt == "" {
		prompt = "Describe this image."
	}
	text, err := h.Images.AnalyzeImage(r.Context(), data, mimeType, prompt)
	if err != nil {
		h.Log.Warn("image analysis failed", "error", err)
		respondWithError(w, http.StatusBadGateway, "Could not analyze the image. Please try again.")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"text": text})
}

// EditImage applies the prompt to an uploaded picture for interactive-edit
// lessons.
func (h *ApiHandler) EditImage(w http.ResponseWriter, r *http.Request) {
	data, mimeType, prompt, ok := h.readImageForm(w, r, models.LessonInteractiveEdit)
	if !ok {
		return
	}
	if prompt == "" {
		respondWithError(w, http.StatusBadRequest, "Describe the edit")
		return
	}
	img, err := h.Images.EditImage(r.Context(), data, mimeType, prompt)
	if err != nil {
		h.Log.Warn("image edit failed", "error", err)
		respondWithError(w, http.StatusBadGateway, "Could not edit the image. Please try again.")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"image":     base64.StdEncoding.EncodeToString(img.Data),
		"mime_type": img.MIMEType,
		"caption":   img.Caption,
	})
}
