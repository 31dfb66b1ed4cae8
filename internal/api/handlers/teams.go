package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/team"
)

type TeamHandler struct {
	svc *team.Service
}

func NewTeamHandler(svc *team.Service) *TeamHandler {
	return &TeamHandler{svc: svc}
}

type createTeamRequest struct {
	Name string `json:"name"`
}

func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.svc.Create(r.Context(), currentUser(r), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

type addMemberRequest struct {
	UserID string            `json:"userId"`
	Role   models.MemberRole `json:"role"`
}

func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.svc.AddMember(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.UserID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.RemoveMember(r.Context(), currentUser(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}
