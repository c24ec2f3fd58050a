package auth

import "context"

// SetSessionForTest injects a session ID into the context for testing purposes.
func SetSessionForTest(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}
