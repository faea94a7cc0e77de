package middleware

import (
	"net/http"
)

// CORS handles Cross-Origin Resource Sharing for the browser client.
type CORS struct {
	allowedOrigins []string
	allowAll       bool
}

// NewCORS creates CORS middleware for the given origins. "*" allows all.
func NewCORS(allowedOrigins []string) *CORS {
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	return &CORS{allowedOrigins: allowedOrigins, allowAll: allowAll}
}

// Handler returns the CORS middleware handler.
func (m *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && (m.allowAll || m.isOriginAllowed(origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// IsOriginAllowed reports whether the realtime handshake may accept the
// origin. Shared with the WebSocket upgrader's origin check.
func (m *CORS) IsOriginAllowed(origin string) bool {
	if origin == "" || m.allowAll {
		return true
	}
	return m.isOriginAllowed(origin)
}

// isOriginAllowed requires an exact match: suffix matching would let
// evil-example.com impersonate an allowed example.com.
func (m *CORS) isOriginAllowed(origin string) bool {
	for _, allowed := range m.allowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}
