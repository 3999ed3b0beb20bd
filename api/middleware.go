package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/detofa/points-engine/auth"
)

type contextKey string

const principalKey contextKey = "principal"

// RequestLogger logs method, path, status-relevant timing, and remote
// address of each request through Logrus.
func RequestLogger(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}

// Authenticate resolves the Bearer token to a principal id and stores it in
// the request context. Requests without a valid token are rejected with 401
// before any store transaction is opened.
func Authenticate(tokens *auth.Tokens) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Missing or invalid token", nil)
				return
			}

			userID, err := tokens.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// principalID returns the authenticated user's id from the request context.
// Empty only if the handler is reached without the Authenticate middleware.
func principalID(r *http.Request) string {
	id, _ := r.Context().Value(principalKey).(string)
	return id
}
