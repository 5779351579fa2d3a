package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/playperu/territories/internal/game"
	"github.com/playperu/territories/internal/live"
)

type ctxKey int

const ctxKeySession ctxKey = iota

// tokenFromRequest reads the session token from the Authorization header or,
// for EventSource and WebSocket clients, the token query parameter.
func tokenFromRequest(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

func requireSession(sessions *live.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := sessions.Get(tokenFromRequest(r))
			if !ok {
				writeError(w, http.StatusUnauthorized, "not logged in")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeySession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireRole(role game.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessionFrom(r).Viewer.Role != role {
				writeError(w, http.StatusForbidden, "not allowed for your role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sessionFrom(r *http.Request) live.Session {
	return r.Context().Value(ctxKeySession).(live.Session)
}
