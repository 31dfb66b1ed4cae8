package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSPolicy says which browser origins may call the API and what they may
// send and read.
type CORSPolicy struct {
	// AllowedOrigins lists exact origins. "*" admits any origin but then
	// responses carry the wildcard and never credentials.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSPolicy covers the methods and headers the router serves.
func DefaultCORSPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
		MaxAge:         3600,
	}
}

type corsHandler struct {
	next     http.Handler
	policy   CORSPolicy
	origins  map[string]bool
	wildcard bool
	methods  string
	headers  map[string]bool
	allowHdr string
	exposed  string
}

// CORS applies p to every request. Preflights, which are OPTIONS requests
// carrying Access-Control-Request-Method, are answered here and never reach
// the router.
func CORS(p CORSPolicy) func(http.Handler) http.Handler {
	h := corsHandler{
		policy:   p,
		origins:  make(map[string]bool, len(p.AllowedOrigins)),
		headers:  make(map[string]bool, len(p.AllowedHeaders)),
		methods:  strings.Join(p.AllowedMethods, ", "),
		allowHdr: strings.Join(p.AllowedHeaders, ", "),
		exposed:  strings.Join(p.ExposedHeaders, ", "),
	}
	for _, o := range p.AllowedOrigins {
		if o == "*" {
			h.wildcard = true
			continue
		}
		h.origins[o] = true
	}
	for _, name := range p.AllowedHeaders {
		h.headers[http.CanonicalHeaderKey(name)] = true
	}

	return func(next http.Handler) http.Handler {
		h := h
		h.next = next
		return &h
	}
}

func (h *corsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		h.preflight(w, r)
		return
	}

	w.Header().Add("Vary", "Origin")
	if allow, ok := h.allowOrigin(r.Header.Get("Origin")); ok {
		h.writeOrigin(w, allow)
		if h.exposed != "" {
			w.Header().Set("Access-Control-Expose-Headers", h.exposed)
		}
	}
	h.next.ServeHTTP(w, r)
}

func (h *corsHandler) preflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Vary", "Origin")
	w.Header().Add("Vary", "Access-Control-Request-Method")
	w.Header().Add("Vary", "Access-Control-Request-Headers")

	allow, ok := h.allowOrigin(r.Header.Get("Origin"))
	if !ok || !h.methodAllowed(r.Header.Get("Access-Control-Request-Method")) || !h.headersAllowed(r.Header.Get("Access-Control-Request-Headers")) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeOrigin(w, allow)
	w.Header().Set("Access-Control-Allow-Methods", h.methods)
	if h.allowHdr != "" {
		w.Header().Set("Access-Control-Allow-Headers", h.allowHdr)
	}
	if h.policy.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(h.policy.MaxAge))
	}
	w.WriteHeader(http.StatusNoContent)
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin.
func (h *corsHandler) allowOrigin(origin string) (string, bool) {
	switch {
	case origin == "":
		return "", false
	case h.origins[origin]:
		return origin, true
	case h.wildcard:
		return "*", true
	}
	return "", false
}

func (h *corsHandler) writeOrigin(w http.ResponseWriter, allow string) {
	w.Header().Set("Access-Control-Allow-Origin", allow)
	if h.policy.AllowCredentials && allow != "*" {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
}

func (h *corsHandler) methodAllowed(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodPost ||
		slices.Contains(h.policy.AllowedMethods, strings.ToUpper(m))
}

func (h *corsHandler) headersAllowed(list string) bool {
	for name := range strings.SplitSeq(list, ",") {
		name = strings.TrimSpace(name)
		if name != "" && !h.headers[http.CanonicalHeaderKey(name)] {
			return false
		}
	}
	return true
}
