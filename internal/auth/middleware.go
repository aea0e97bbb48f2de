package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type ctxKey string

const sessionIDKey ctxKey = "session_id"

func UIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(sessionIDKey).(string)
	return uid, ok && uid != ""
}

// WithUID attaches a session id to ctx.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, sessionIDKey, uid)
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" || !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(h, "Bearer "), true
}

func RequireSession(jwtSvc *JWT) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r)
			if !ok {
				unauthorized(w)
				return
			}
			uid, err := jwtSvc.Verify(token)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUID(r.Context(), uid)))
		})
	}
}

// OptionalSession attaches the session id when a valid token is present and
// passes every request through.
func OptionalSession(jwtSvc *JWT) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearer(r); ok {
				if uid, err := jwtSvc.Verify(token); err == nil {
					r = r.WithContext(WithUID(r.Context(), uid))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "a valid session token is required"})
}
