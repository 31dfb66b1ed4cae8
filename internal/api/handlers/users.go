package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/team"
)

type UserHandler struct {
	teams *team.Service
}

func NewUserHandler(teams *team.Service) *UserHandler {
	return &UserHandler{teams: teams}
}

// Me returns the signed-in user with the teams they belong to.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		writeError(w, r, apperr.Unauthorized("no user in context"))
		return
	}

	teams, err := h.teams.ListForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user, "teams": teams})
}
