// Package middleware holds the HTTP middleware for the ops API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
)

// tokenSource pulls a credential out of a request, or returns "".
type tokenSource func(r *http.Request) string

var tokenSources = []tokenSource{
	func(r *http.Request) string {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	},
	func(r *http.Request) string { return strings.TrimSpace(r.Header.Get("X-API-Key")) },
	// Browsers cannot set headers on a WebSocket handshake.
	func(r *http.Request) string {
		if r.URL.Path != "/ws" {
			return ""
		}
		return r.URL.Query().Get("api_key")
	},
}

// Auth requires apiKey as a bearer token, an X-API-Key header or, on /ws
// only, an api_key query parameter. An empty apiKey turns the check off.
// Paths in public skip it.
func Auth(apiKey string, public ...string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" && !slices.Contains(public, r.URL.Path) {
				got := presentedToken(r)
				switch {
				case got == "":
					deny(w, "missing authentication token")
					return
				case subtle.ConstantTimeCompare([]byte(got), want) != 1:
					deny(w, "invalid authentication token")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedToken(r *http.Request) string {
	for _, src := range tokenSources {
		if tok := src(r); tok != "" {
			return tok
		}
	}
	return ""
}

func deny(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="studiobot"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
