package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/backup"
	"github.com/nikhilbhutani/promptkeeper/internal/impact"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/permission"
)

// DeletionHandler serves impact analysis, cascade deletes and restores.
type DeletionHandler struct {
	analyzer *impact.Analyzer
	backups  *backup.Service
}

func NewDeletionHandler(analyzer *impact.Analyzer, backups *backup.Service) *DeletionHandler {
	return &DeletionHandler{analyzer: analyzer, backups: backups}
}

func (h *DeletionHandler) Impact(w http.ResponseWriter, r *http.Request) {
	imp, ok := h.analyze(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

type bulkImpactRequest struct {
	PromptIDs []string `json:"promptIds"`
}

func (h *DeletionHandler) BulkImpact(w http.ResponseWriter, r *http.Request) {
	var req bulkImpactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	imp, ok := analyzeBulk(w, r, h.analyzer, currentUser(r), req.PromptIDs)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

// Delete requires ?confirm=true. Without it the impact summary is returned
// with 428 so the client can show it before asking again.
func (h *DeletionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	imp, ok := h.analyze(w, r, id)
	if !ok {
		return
	}
	if !imp.CanDelete {
		writeError(w, r, apperr.Unauthorized("cannot delete prompt %s", id))
		return
	}
	if confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirm {
		writeJSON(w, http.StatusPreconditionRequired, map[string]interface{}{
			"error":  "deletion must be confirmed with confirm=true",
			"impact": imp,
		})
		return
	}

	b, err := h.backups.DeleteWithCascade(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "backup": b})
}

func (h *DeletionHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	backups, err := h.backups.ListDeletionBackups(r.Context(), currentUser(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"backups": backups, "count": len(backups)})
}

func (h *DeletionHandler) Restore(w http.ResponseWriter, r *http.Request) {
	p, err := h.backups.RestoreDeletedPrompt(r.Context(), currentUser(r), chi.URLParam(r, "promptId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// analyze runs the single-prompt analysis for the current user and writes
// the error response itself when it fails.
func (h *DeletionHandler) analyze(w http.ResponseWriter, r *http.Request, id string) (*models.DeletionImpact, bool) {
	user := currentUser(r)
	imp, err := h.analyzer.AnalyzeDeletionImpact(r.Context(), id)
	if err != nil {
		writeAnalysisError(w, r, err)
		return nil, false
	}
	if !permission.CanViewPrompt(user, &imp.Prompt) {
		writeError(w, r, apperr.Unauthorized("cannot view prompt %s", id))
		return nil, false
	}
	imp.CanDelete = permission.CanDeletePrompt(user, &imp.Prompt)
	return imp, true
}

func analyzeBulk(w http.ResponseWriter, r *http.Request, analyzer *impact.Analyzer, user *models.User, ids []string) (*models.BulkDeletionImpact, bool) {
	imp, err := analyzer.AnalyzeBulkDeletionImpact(r.Context(), ids)
	if err != nil {
		writeAnalysisError(w, r, err)
		return nil, false
	}
	imp.CanDeleteAll = true
	for i := range imp.Impacts {
		p := &imp.Impacts[i].Prompt
		if !permission.CanViewPrompt(user, p) {
			writeError(w, r, apperr.Unauthorized("cannot view prompt %s", p.ID))
			return nil, false
		}
		imp.Impacts[i].CanDelete = permission.CanDeletePrompt(user, p)
		imp.CanDeleteAll = imp.CanDeleteAll && imp.Impacts[i].CanDelete
	}
	return imp, true
}

// writeAnalysisError reports infrastructure failures as 503: a delete is
// never offered without a completed analysis.
func writeAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.IsNotFound(err) || apperr.IsValidation(err) || apperr.IsUnauthorized(err) {
		writeError(w, r, err)
		return
	}
	slog.Error("impact analysis failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "impact analysis unavailable, nothing was deleted"})
}
