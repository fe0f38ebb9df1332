package middleware

import (
	"context"
	"net/http"
	"net/url"

	"topicref/pkg/common"
	apperrors "topicref/pkg/errors"
)

// LoginPath is where RequireLogin sends anonymous callers.
const LoginPath = "/api/v1/auth/login"

// LoginChecker answers whether a session key belongs to a completed,
// unexpired login.
type LoginChecker interface {
	IsLoggedIn(ctx context.Context, key string) (bool, error)
}

// RequireSession guards API resources: callers without a logged-in session
// get a 401 and the handler never runs.
func RequireSession(checker LoginChecker, errs *apperrors.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok, err := loggedIn(r, checker)
			if err != nil {
				errs.Handle(w, r, err)
				return
			}
			if !ok {
				errs.Handle(w, r, apperrors.NewUnauthorizedError("Not logged in!"))
				return
			}
			next.ServeHTTP(w, r.WithContext(common.WithSessionKey(r.Context(), key)))
		})
	}
}

// RequireLogin guards browser-facing pages: callers without a logged-in
// session are redirected to the login endpoint with the original path as
// referrer.
func RequireLogin(checker LoginChecker, errs *apperrors.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok, err := loggedIn(r, checker)
			if err != nil {
				errs.Handle(w, r, err)
				return
			}
			if !ok {
				http.Redirect(w, r, LoginPath+"?referrer="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(common.WithSessionKey(r.Context(), key)))
		})
	}
}

func loggedIn(r *http.Request, checker LoginChecker) (string, bool, error) {
	cookie, err := r.Cookie(common.SessionCookie)
	if err != nil || cookie.Value == "" {
		return "", false, nil
	}
	ok, err := checker.IsLoggedIn(r.Context(), cookie.Value)
	if err != nil {
		return "", false, err
	}
	return cookie.Value, ok, nil
}
