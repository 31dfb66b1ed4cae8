package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/audit"
)

type AdminHandler struct {
	auditSvc *audit.Service
}

func NewAdminHandler(auditSvc *audit.Service) *AdminHandler {
	return &AdminHandler{auditSvc: auditSvc}
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{
		Action: r.URL.Query().Get("action"),
		UserID: r.URL.Query().Get("user_id"),
	}

	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	var err error
	if q.StartDate, err = parseTime(r, "start_date"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.EndDate, err = parseTime(r, "end_date"); err != nil {
		writeError(w, r, err)
		return
	}

	logs, err := h.auditSvc.GetAuditLogs(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": logs, "count": len(logs)})
}

func parseTime(r *http.Request, key string) (*time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, apperr.Invalid(key, "must be an RFC 3339 timestamp")
	}
	return &t, nil
}
