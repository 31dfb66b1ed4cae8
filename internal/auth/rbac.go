package auth

import (
	"net/http"

	"github.com/nikhilbhutani/promptkeeper/internal/identity"
	"github.com/nikhilbhutani/promptkeeper/internal/permission"
)

// RequireSuperUser rejects requests whose user is not a super user.
func RequireSuperUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := identity.UserFromContext(r.Context())
		if user == nil {
			writeError(w, http.StatusForbidden, "no user in context")
			return
		}
		if !permission.IsSuperUser(user) {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}
