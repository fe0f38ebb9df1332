package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"topicref/application/identity"
	"topicref/pkg/common"
	apperrors "topicref/pkg/errors"
)

// CookieOptions controls the session cookie set after a completed login.
type CookieOptions struct {
	Secure bool
	TTL    time.Duration
}

// AuthHandler handles the login handshake endpoints
type AuthHandler struct {
	auth    Authenticator
	cookies CookieOptions
	errs    *apperrors.ErrorHandler
	logger  *zap.Logger
}

func NewAuthHandler(auth Authenticator, cookies CookieOptions, errs *apperrors.ErrorHandler, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, cookies: cookies, errs: errs, logger: logger}
}

// Login handles GET /auth/login?referrer=/path and redirects to the provider.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	referrer := identity.SafeReferrer(r.URL.Query().Get("referrer"))
	authURL, _, err := h.auth.Login(r.Context(), referrer)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Authorize handles the provider callback. The code flow arrives as a GET
// with code and state in the query; the id_token flow is a form POST.
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.errs.Handle(w, r, apperrors.NewValidationError("invalid authorization response"))
		return
	}
	if code := r.Form.Get("error"); code != "" {
		h.errs.Handle(w, r, apperrors.NewUnauthorizedError("identity provider refused the login").
			WithCode(code).
			WithDetail("description", r.Form.Get("error_description")))
		return
	}

	credential := r.Form.Get("code")
	if h.auth.Flow() == identity.FlowIDToken {
		credential = r.Form.Get("id_token")
	}
	state, referrer := identity.ParseState(r.Form.Get("state"))
	if state == "" {
		h.errs.Handle(w, r, apperrors.NewValidationError("missing state"))
		return
	}

	if err := h.auth.Complete(r.Context(), credential, state); err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(h.cookies.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, identity.SafeReferrer(referrer), http.StatusFound)
}

// User handles GET /auth/user
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(common.SessionCookie)
	if err != nil || cookie.Value == "" {
		h.errs.Handle(w, r, apperrors.NewUnauthorizedError("Not logged in!"))
		return
	}
	user, err := h.auth.GetUser(r.Context(), cookie.Value)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, user)
}

// Logout handles POST /auth/logout. It succeeds without a session too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(common.SessionCookie); err == nil && cookie.Value != "" {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			h.errs.Handle(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	common.RespondJSON(w, http.StatusOK, common.NewGeneric("Logged out"))
}
