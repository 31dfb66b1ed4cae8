package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/identity"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
)

// Claims is the subset of an ID token the service reads.
type Claims struct {
	Email  string `json:"email"`
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID prefers the registered subject and falls back to user_id.
func (c *Claims) SubjectID() string {
	if c.RegisteredClaims.Subject != "" {
		return c.RegisteredClaims.Subject
	}
	return c.UserID
}

// UserResolver maps an authenticated subject to a user record.
type UserResolver interface {
	Resolve(ctx context.Context, subject, email string) (*models.User, error)
}

type JWTMiddleware struct {
	secret   []byte
	resolver UserResolver
}

func NewJWTMiddleware(secret string, resolver UserResolver) *JWTMiddleware {
	return &JWTMiddleware{
		secret:   []byte(secret),
		resolver: resolver,
	}
}

func (m *JWTMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		}, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := r.Context()
		user, err := m.resolver.Resolve(ctx, claims.SubjectID(), claims.Email)
		if err != nil {
			if apperr.IsUnauthorized(err) {
				writeError(w, http.StatusUnauthorized, "invalid user in token")
				return
			}
			slog.Error("resolve user failed", "subject", claims.SubjectID(), "error", err)
			writeError(w, http.StatusServiceUnavailable, "user lookup failed")
			return
		}

		ctx = identity.WithUser(ctx, user)
		ctx = context.WithValue(ctx, claimsKey, claims)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey string

const claimsKey ctxKey = "claims"

func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
