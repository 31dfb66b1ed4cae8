package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/prompt"
	"github.com/nikhilbhutani/promptkeeper/internal/subscription"
)

type PromptHandler struct {
	svc    *prompt.Service
	poller *subscription.Poller
}

func NewPromptHandler(svc *prompt.Service, poller *subscription.Poller) *PromptHandler {
	return &PromptHandler{svc: svc, poller: poller}
}

func (h *PromptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req prompt.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.svc.Create(r.Context(), currentUser(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.svc.ListVisible(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": prompts, "count": len(prompts)})
}

func (h *PromptHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *PromptHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req prompt.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.svc.Update(r.Context(), currentUser(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *PromptHandler) Render(w http.ResponseWriter, r *http.Request) {
	var req prompt.RenderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.svc.Render(r.Context(), currentUser(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"rendered": out})
}

// Stream sends the visible prompt list as server-sent events whenever it
// changes. Slow clients only see the latest snapshot.
func (h *PromptHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	user := currentUser(r)
	if _, err := h.svc.ListVisible(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates := make(chan []models.Prompt, 1)
	unsubscribe := h.poller.Subscribe(r.Context(), func(ctx context.Context) ([]models.Prompt, error) {
		return h.svc.ListVisible(ctx, user)
	}, func(snap []models.Prompt) {
		select {
		case updates <- snap:
		default:
			select {
			case <-updates:
			default:
			}
			updates <- snap
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			data, _ := json.Marshal(map[string]interface{}{"prompts": snap, "count": len(snap)})
			fmt.Fprintf(w, "event: prompts\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
