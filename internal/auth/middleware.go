package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	playerKey    contextKey = "player"
)

// Middleware returns an HTTP middleware that validates session tokens.
// The token comes from the Authorization header (Bearer scheme) or, for
// WebSocket upgrades that cannot set headers, the "token" query parameter.
// The session ID and player name are stored in the request context.
func Middleware(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := r.URL.Query().Get("token")
			if header := r.Header.Get("Authorization"); header != "" {
				parts := strings.SplitN(header, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
					writeUnauthorized(w, "invalid authorization format")
					return
				}
				tokenStr = parts[1]
			}
			if tokenStr == "" {
				writeUnauthorized(w, "missing authorization header")
				return
			}

			claims, err := jwtMgr.ValidateToken(tokenStr)
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, claims.SessionID)
			ctx = context.WithValue(ctx, playerKey, claims.Player)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

// SessionIDFromContext extracts the authenticated session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// PlayerFromContext extracts the player name carried by the token.
func PlayerFromContext(ctx context.Context) string {
	p, _ := ctx.Value(playerKey).(string)
	return p
}
