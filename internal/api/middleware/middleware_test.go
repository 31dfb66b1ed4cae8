package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhutani/promptkeeper/internal/audit"
)

func ok(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Limit(http.HandlerFunc(ok))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1000"))

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1003"))
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.allow("a")

	now = now.Add(4 * time.Minute)
	rl.allow("b")
	rl.sweep()

	assert.NotContains(t, rl.visitors, "a")
	assert.Contains(t, rl.visitors, "b")
}

func corsRequest(h http.Handler, method, origin string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSExplicitOrigins(t *testing.T) {
	p := DefaultCORSPolicy([]string{"https://app.example.com"})
	p.AllowCredentials = true
	h := CORS(p)(http.HandlerFunc(ok))

	rec := corsRequest(h, http.MethodOptions, "https://app.example.com", map[string]string{
		"Access-Control-Request-Method":  "DELETE",
		"Access-Control-Request-Headers": "authorization, content-type",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, rec.Header().Values("Vary"), "Access-Control-Request-Method")

	rec = corsRequest(h, http.MethodOptions, "https://app.example.com", map[string]string{
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "X-Debug",
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), "unlisted header")

	rec = corsRequest(h, http.MethodGet, "https://app.example.com", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "Retry-After, X-Request-Id", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Contains(t, rec.Header().Values("Vary"), "Origin")

	rec = corsRequest(h, http.MethodGet, "https://evil.example.com", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSWildcardNeverSendsCredentials(t *testing.T) {
	p := DefaultCORSPolicy([]string{"*"})
	p.AllowCredentials = true
	h := CORS(p)(http.HandlerFunc(ok))

	rec := corsRequest(h, http.MethodGet, "https://any.example.com", nil)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSPlainOptionsReachesRouter(t *testing.T) {
	called := false
	h := CORS(DefaultCORSPolicy([]string{"*"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	rec := corsRequest(h, http.MethodOptions, "https://any.example.com", nil)
	assert.True(t, called)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLoggingSetsClientIP(t *testing.T) {
	var ip string
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = audit.ClientIPFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "192.0.2.7", ip)
}
