package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"sprint-academy/internal/models"
	"sprint-academy/internal/payments"
)

// StartPayment submits the checkout form and returns the gateway URL.
func (h *ApiHandler) StartPayment(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	var form payments.PurchaseForm
	if !decodeJSON(w, r, &form) {
		return
	}
	out, err := v.Payments.Submit(r.Context(), form)
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}

type syncRequest struct {
	OrderID string `json:"orderId"`
}

func (h *ApiHandler) SyncPayment(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	var req syncRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := v.Payments.Sync(r.Context(), req.OrderID)
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *ApiHandler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	list, err := v.Payments.Feedback(r.Context(), mux.Vars(r)["course_id"])
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (h *ApiHandler) PostFeedback(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	var fb models.Feedback
	if !decodeJSON(w, r, &fb) {
		return
	}
	fb.CourseID = mux.Vars(r)["course_id"]
	out, err := v.Payments.PostFeedback(r.Context(), fb)
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, out)
}

func (h *ApiHandler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	list, err := v.Payments.Purchases(r.Context())
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}
