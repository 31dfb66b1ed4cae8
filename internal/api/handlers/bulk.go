package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/bulk"
	"github.com/nikhilbhutani/promptkeeper/internal/impact"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/permission"
	"github.com/nikhilbhutani/promptkeeper/internal/queue"
)

// BulkQueue defers bulk operations to the worker.
type BulkQueue interface {
	EnqueueBulkExecute(ctx context.Context, payload queue.BulkExecutePayload) error
	BulkJob(jobID string) (*queue.BulkJob, error)
}

type BulkHandler struct {
	exec      *bulk.Executor
	analyzer  *impact.Analyzer
	queue     BulkQueue
	threshold int
}

// NewBulkHandler runs every request inline when q is nil. Otherwise requests
// with at least asyncThreshold ids, or that ask for it, are queued.
func NewBulkHandler(exec *bulk.Executor, analyzer *impact.Analyzer, q BulkQueue, asyncThreshold int) *BulkHandler {
	return &BulkHandler{exec: exec, analyzer: analyzer, queue: q, threshold: asyncThreshold}
}

type bulkRequest struct {
	Operation models.BulkOperation `json:"operation"`
	PromptIDs []string             `json:"promptIds"`
	Async     bool                 `json:"async"`
	Confirm   bool                 `json:"confirm"`
}

func (h *BulkHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.PromptIDs) == 0 {
		writeError(w, r, apperr.Invalid("promptIds", "at least one prompt id is required"))
		return
	}

	ctx := r.Context()
	user := currentUser(r)
	if err := h.exec.Validate(ctx, user, req.Operation); err != nil {
		writeError(w, r, err)
		return
	}

	if req.Operation.Type == models.BulkDelete && !h.confirmDelete(w, r, req) {
		return
	}

	if h.queue != nil && (req.Async || (h.threshold > 0 && len(req.PromptIDs) >= h.threshold)) {
		jobID := uuid.NewString()
		err := h.queue.EnqueueBulkExecute(ctx, queue.BulkExecutePayload{
			JobID:     jobID,
			UserID:    user.ID,
			Operation: req.Operation,
			PromptIDs: req.PromptIDs,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": "queued"})
		return
	}

	res, err := h.exec.Execute(ctx, user, req.Operation, req.PromptIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// confirmDelete analyzes a bulk delete before anything is deleted or queued.
// An unconfirmed request gets the impact back with 428. A confirmed one goes
// ahead only if the analysis completed; ids that are already gone are left to
// fail per item.
func (h *BulkHandler) confirmDelete(w http.ResponseWriter, r *http.Request, req bulkRequest) bool {
	if req.Confirm {
		_, err := h.analyzer.AnalyzeBulkDeletionImpact(r.Context(), req.PromptIDs)
		if err != nil && !apperr.IsNotFound(err) {
			writeAnalysisError(w, r, err)
			return false
		}
		return true
	}

	imp, ok := analyzeBulk(w, r, h.analyzer, currentUser(r), req.PromptIDs)
	if !ok {
		return false
	}
	writeJSON(w, http.StatusPreconditionRequired, map[string]interface{}{
		"error":  "bulk deletion must be confirmed with \"confirm\": true",
		"impact": imp,
	})
	return false
}

// Job reports a queued bulk operation. Jobs of other users look absent.
func (h *BulkHandler) Job(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if h.queue == nil {
		writeError(w, r, apperr.NotFound("bulk job %s", jobID))
		return
	}

	job, err := h.queue.BulkJob(jobID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user := currentUser(r)
	if user == nil || (job.UserID != user.ID && !permission.IsSuperUser(user)) {
		writeError(w, r, apperr.NotFound("bulk job %s", jobID))
		return
	}

	writeJSON(w, http.StatusOK, job)
}
