package middleware

import (
	"net"
	"net/http"

	"topicref/pkg/auth"
	apperrors "topicref/pkg/errors"
)

// RateLimit rejects callers that exceed the limiter's per-IP budget.
func RateLimit(limiter *auth.IPRateLimiter, errs *apperrors.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(getClientIP(r)) {
				w.Header().Set("Retry-After", "60")
				errs.Handle(w, r, apperrors.NewRateLimitError(limiter.Limit(), "1m"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP is the host of the connection address. Forwarding headers are
// client controlled and count only once chi's RealIP has rewritten
// RemoteAddr, which the router does behind a trusted proxy.
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
