// Package authmw provides HTTP middleware for token authentication of the
// station API and the push intake endpoint.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// DefaultSecretHeader carries the shared secret on push deliveries.
const DefaultSecretHeader = "X-Klaxon-Push-Secret"

// BearerToken returns middleware that validates the Authorization header
// contains a Bearer token matching the expected value. Comparison uses
// constant-time equality to prevent timing side-channel attacks.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "missing or malformed authorization header")
				return
			}

			if !equal([]byte(auth[len("Bearer "):]), expected) {
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SharedSecret returns middleware that requires header to equal secret.
// An empty header name falls back to DefaultSecretHeader.
func SharedSecret(header, secret string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultSecretHeader
	}
	expected := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" {
				unauthorized(w, "missing push secret")
				return
			}
			if !equal([]byte(got), expected) {
				unauthorized(w, "invalid push secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Optional applies mw only when enabled is true, so callers can wire auth
// unconditionally and let configuration decide.
func Optional(enabled bool, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

func equal(got, expected []byte) bool {
	return len(expected) > 0 && subtle.ConstantTimeCompare(got, expected) == 1
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
