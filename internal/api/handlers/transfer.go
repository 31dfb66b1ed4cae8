package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/transfer"
)

const maxImportBytes = 10 << 20

type TransferHandler struct {
	svc *transfer.Service
}

func NewTransferHandler(svc *transfer.Service) *TransferHandler {
	return &TransferHandler{svc: svc}
}

func (h *TransferHandler) Export(w http.ResponseWriter, r *http.Request) {
	scope := transfer.Scope(r.URL.Query().Get("scope"))

	file, err := h.svc.Export(r.Context(), currentUser(r), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("prompts-%s-%s.json", file.Scope, file.ExportedAt.Format("20060102-150405"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	writeJSON(w, http.StatusOK, file)
}

// Analyze classifies an uploaded export file without writing anything.
func (h *TransferHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	raw, err := readImport(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.svc.Analyze(r.Context(), currentUser(r), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// Import applies a file; ?resolution= picks how conflicts are handled.
func (h *TransferHandler) Import(w http.ResponseWriter, r *http.Request) {
	raw, err := readImport(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res := transfer.Resolution(r.URL.Query().Get("resolution"))

	result, err := h.svc.Apply(r.Context(), currentUser(r), raw, res)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func readImport(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		return nil, apperr.Invalid("file", "unreadable or larger than 10MB")
	}
	return raw, nil
}
