package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/optimizer"
	"github.com/nikhilbhutani/promptkeeper/internal/prompt"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
	"github.com/nikhilbhutani/promptkeeper/internal/usage"
)

// UsageHandler records usage events and serves analytics and optimization.
type UsageHandler struct {
	prompts   *prompt.Service
	store     store.Store
	tracker   *usage.Tracker
	optimizer *optimizer.Service
}

func NewUsageHandler(prompts *prompt.Service, s store.Store, tracker *usage.Tracker, opt *optimizer.Service) *UsageHandler {
	return &UsageHandler{prompts: prompts, store: s, tracker: tracker, optimizer: opt}
}

type trackRequest struct {
	Action models.UsageAction `json:"action"`
}

func (h *UsageHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user := currentUser(r)
	p, err := h.prompts.Get(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.tracker.Track(r.Context(), user, p.ID, req.Action); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *UsageHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	p, err := h.prompts.Get(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := usage.PromptAnalytics(r.Context(), h.store, p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *UsageHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req optimizer.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.optimizer.Optimize(r.Context(), currentUser(r), chi.URLParam(r, "id"), req)
	if errors.Is(err, optimizer.ErrUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
