package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/identity"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

type HealthHandler struct {
	db    *pgxpool.Pool
	redis *redis.Client
	store store.Store
}

// NewHealthHandler accepts nil dependencies; absent backends are not checked.
func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client, s store.Store) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, store: s}
}

// probePath is never written; reading it exercises the whole store stack.
const probePath = "health/probe"

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "ok"
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	if h.store != nil {
		if _, err := h.store.Get(r.Context(), probePath); err != nil && !apperr.IsNotFound(err) {
			checks["store"] = "unhealthy: " + err.Error()
		} else {
			checks["store"] = "ok"
		}
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, map[string]interface{}{"status": statusStr(status), "checks": checks})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err onto a status code. Internal errors are logged and
// reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Invalid("body", "invalid request body")
}

func currentUser(r *http.Request) *models.User {
	return identity.UserFromContext(r.Context())
}
