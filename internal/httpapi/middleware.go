package httpapi

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/mingle/matchd/internal/ratelimit"
)

type contextKey string

const userIDKey contextKey = "user_id"

// userID extracts the authenticated user id placed by the auth middleware.
func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

// authenticate resolves the bearer token (or session cookie) to a user id
// and refreshes the session TTL. Requests without a valid session get 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			errorJSON(w, http.StatusUnauthorized, "missing session token")
			return
		}

		sess, err := s.sessions.Get(r.Context(), token)
		if err != nil {
			log.Printf("[httpapi] session lookup: %v", err)
			errorJSON(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if sess == nil {
			errorJSON(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		if err := s.sessions.Touch(r.Context(), token); err != nil {
			log.Printf("[httpapi] session touch: %v", err)
		}

		ctx := context.WithValue(r.Context(), userIDKey, sess.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c, err := r.Cookie("session_token"); err == nil {
		return c.Value
	}
	return ""
}

// rateLimit throttles the wrapped handler per user under the given rule.
// With no limiter configured it is a pass-through.
func (s *Server) rateLimit(rule ratelimit.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			id := strconv.FormatInt(userID(r), 10)
			ok, _ := s.limiter.Allow(r.Context(), id, rule)
			if !ok {
				errorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
