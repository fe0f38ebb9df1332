package common

import "context"

type contextKey string

const contextKeySession contextKey = "session_key"

// WithSessionKey stores the caller's session key once it has been checked.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, contextKeySession, key)
}

// SessionKey returns the session key stored by WithSessionKey.
func SessionKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(contextKeySession).(string)
	return key, ok && key != ""
}

// SessionCookie carries the session key between the browser and the API.
const SessionCookie = "ir_session"
