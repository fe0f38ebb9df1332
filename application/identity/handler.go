// Package identity runs the OpenID Connect login handshake against the
// Microsoft identity platform and answers whether a session is logged in.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"topicref/application/ports"
	"topicref/domain/core/entities"
	"topicref/domain/events"
	"topicref/pkg/auth"
	apperrors "topicref/pkg/errors"
	"topicref/pkg/observability"
)

// Flow selects how the provider returns the login result.
type Flow string

const (
	// FlowCode is the authorization code flow with PKCE.
	FlowCode Flow = "code"
	// FlowIDToken is the implicit flow posting an id_token back to us.
	FlowIDToken Flow = "id_token"
)

// CallbackPath is where the provider redirects after login.
const CallbackPath = "/api/v1/auth/authorize"

// Endpoint paths below the provider host.
const (
	authorizePath = "/oauth2/v2.0/authorize"
	tokenPath     = "/oauth2/v2.0/token"
	keysPath      = "/discovery/v2.0/keys"
)

// JWKSURL is the key set location for a provider host.
func JWKSURL(idpHost string) string {
	return strings.TrimRight(idpHost, "/") + keysPath
}

type Config struct {
	IDPHost      string
	ClientID     string
	ClientSecret string
	PublicURL    string
	Flow         Flow
	LoginTimeout time.Duration
	SessionTTL   time.Duration
}

// TokenVerifier checks an id token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.IDTokenClaims, error)
}

type AuthHandler struct {
	cfg        Config
	oauth      *oauth2.Config
	sessions   ports.SessionStore
	verifier   TokenVerifier
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	bus        ports.EventBus
	metrics    *observability.Collector
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthHandler validates cfg and derives the provider endpoints from it.
// bus and metrics may be nil.
func NewAuthHandler(
	cfg Config,
	sessions ports.SessionStore,
	verifier TokenVerifier,
	httpClient *http.Client,
	bus ports.EventBus,
	metrics *observability.Collector,
	logger *zap.Logger,
) (*AuthHandler, error) {
	public, err := url.Parse(cfg.PublicURL)
	if err != nil || (public.Scheme != "http" && public.Scheme != "https") || public.Host == "" {
		return nil, fmt.Errorf("public url %q must be an absolute http(s) url", cfg.PublicURL)
	}
	provider, err := url.Parse(cfg.IDPHost)
	if err != nil || provider.Scheme == "" || provider.Host == "" {
		return nil, fmt.Errorf("identity provider host %q must be an absolute url", cfg.IDPHost)
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	switch cfg.Flow {
	case FlowCode, FlowIDToken:
	default:
		return nil, fmt.Errorf("unknown auth flow %q", cfg.Flow)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	base := strings.TrimRight(cfg.IDPHost, "/")
	h := &AuthHandler{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + authorizePath,
				TokenURL:  base + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: strings.TrimRight(cfg.PublicURL, "/") + CallbackPath,
			Scopes:      []string{"openid", "profile", "email"},
		},
		sessions:   sessions,
		verifier:   verifier,
		httpClient: httpClient,
		bus:        bus,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	h.breaker = auth.NewBreaker("token-exchange", providerHealthy, logger)
	return h, nil
}

// providerHealthy counts a refused grant as a healthy provider; only
// transport failures and 5xx answers trip the breaker.
func providerHealthy(err error) bool {
	if err == nil {
		return true
	}
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500
}

// Login persists a fresh session record and returns the authorization URL
// together with the state token that keys the record.
func (h *AuthHandler) Login(ctx context.Context, referrer string) (authURL, state string, err error) {
	state, err = auth.RandomToken(auth.StateTokenLength)
	if err != nil {
		return "", "", apperrors.NewInternalError("failed to generate state").WithCause(err)
	}

	rec := entities.SessionRecord{Key: state, CreatedAt: h.now()}
	var opts []oauth2.AuthCodeOption
	switch h.cfg.Flow {
	case FlowCode:
		rec.Verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(rec.Verifier))
	case FlowIDToken:
		nonce, err := auth.RandomToken(auth.StateTokenLength)
		if err != nil {
			return "", "", apperrors.NewInternalError("failed to generate nonce").WithCause(err)
		}
		rec.Nonce = nonce
		opts = append(opts,
			oauth2.SetAuthURLParam("response_type", "id_token"),
			oauth2.SetAuthURLParam("response_mode", "form_post"),
			oauth2.SetAuthURLParam("nonce", nonce),
		)
	}

	if err := h.sessions.CreateSession(ctx, state, rec); err != nil {
		return "", "", err
	}
	return h.oauth.AuthCodeURL(EncodeState(state, referrer), opts...), state, nil
}

// Complete finishes the login keyed by state with the authorization code or
// id token the provider sent back. A state can complete at most once.
func (h *AuthHandler) Complete(ctx context.Context, credential, state string) (err error) {
	defer func() { h.metrics.LoginCompleted(string(h.cfg.Flow), err) }()

	if credential == "" {
		return apperrors.NewValidationError("missing authorization response")
	}
	rec, err := h.sessions.GetSession(ctx, state)
	if err != nil {
		return err
	}
	if rec.HasToken() {
		return apperrors.NewUnauthorizedError("login already completed for this state")
	}
	if h.cfg.LoginTimeout > 0 && h.now().Sub(rec.CreatedAt) > h.cfg.LoginTimeout {
		return apperrors.NewUnauthorizedError("login attempt expired")
	}

	var token entities.Token
	switch h.cfg.Flow {
	case FlowCode:
		token, err = h.exchange(ctx, credential, rec)
	default:
		token, err = h.verifyIDToken(ctx, credential, rec)
	}
	if err != nil {
		h.logger.Warn("Login rejected", zap.String("flow", string(h.cfg.Flow)), zap.Error(err))
		return err
	}

	if _, err := h.sessions.UpdateSession(ctx, state, token); err != nil {
		return err
	}

	if token.Claims != nil && h.bus != nil {
		event := events.NewUserLoggedIn(entities.UserFromClaims(token.Claims), string(h.cfg.Flow), h.now())
		if err := h.bus.Publish(ctx, event); err != nil {
			h.logger.Warn("Failed to publish login event", zap.Error(err))
		}
	}
	h.logger.Info("Login completed", zap.String("flow", string(h.cfg.Flow)))
	return nil
}

func (h *AuthHandler) exchange(ctx context.Context, code string, rec *entities.SessionRecord) (entities.Token, error) {
	if rec.Verifier == "" {
		return entities.Token{}, apperrors.NewUnauthorizedError("login attempt has no code verifier")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, h.httpClient)
	result, err := h.breaker.Execute(func() (interface{}, error) {
		return h.oauth.Exchange(ctx, code, oauth2.VerifierOption(rec.Verifier))
	})
	if err != nil {
		var re *oauth2.RetrieveError
		switch {
		case errors.As(err, &re) && providerHealthy(err):
			return entities.Token{}, apperrors.NewUnauthorizedError("authorization code rejected by identity provider").WithCause(err)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return entities.Token{}, apperrors.NewUnavailableError("identity provider").WithCause(err)
		default:
			return entities.Token{}, apperrors.NewExternalError("identity provider", err)
		}
	}

	tok := result.(*oauth2.Token)
	now := h.now()
	token := entities.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		IssuedAt:     now,
	}
	if !tok.Expiry.IsZero() {
		token.ExpiresIn = tok.Expiry.Sub(now).Round(time.Second)
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		token.IDToken = raw
		if claims, err := auth.ParseUnverifiedClaims(raw); err == nil {
			token.Claims = toClaims(claims)
		} else {
			h.logger.Warn("Token response carried an unreadable id_token", zap.Error(err))
		}
	}
	return token, nil
}

func (h *AuthHandler) verifyIDToken(ctx context.Context, raw string, rec *entities.SessionRecord) (entities.Token, error) {
	if rec.Nonce == "" {
		return entities.Token{}, apperrors.NewUnauthorizedError("login attempt has no nonce")
	}
	if h.verifier == nil {
		return entities.Token{}, apperrors.NewInternalError("id token verifier is not configured")
	}
	claims, err := h.verifier.Verify(ctx, raw)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrKeyNotFound):
		return entities.Token{}, apperrors.NewNotFoundError("signing key").WithCause(err)
	case errors.Is(err, auth.ErrKeySetUnavailable):
		return entities.Token{}, apperrors.NewExternalError("identity provider", err)
	default:
		return entities.Token{}, apperrors.NewUnauthorizedError("invalid id token").WithCause(err)
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(rec.Nonce)) != 1 {
		return entities.Token{}, apperrors.NewUnauthorizedError("id token nonce does not match login attempt")
	}
	return entities.Token{
		IDToken:  raw,
		IssuedAt: h.now(),
		Claims:   toClaims(claims),
	}, nil
}

// IsLoggedIn is false for a missing session, one without a token, one whose
// expiry cannot be computed, one older than the session lifetime and one
// whose expiry is not in the future. Only store failures are errors.
func (h *AuthHandler) IsLoggedIn(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	rec, err := h.sessions.GetSession(ctx, key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return h.valid(rec), nil
}

func (h *AuthHandler) valid(rec *entities.SessionRecord) bool {
	if !rec.HasToken() {
		return false
	}
	now := h.now()
	if h.cfg.SessionTTL > 0 && now.Sub(rec.CreatedAt) >= h.cfg.SessionTTL {
		return false
	}
	exp, ok := rec.Token.Expiry()
	return ok && exp.After(now)
}

// GetUser returns the logged in user of the session.
func (h *AuthHandler) GetUser(ctx context.Context, key string) (*entities.User, error) {
	rec, err := h.sessions.GetSession(ctx, key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewUnauthorizedError("user is not logged in")
		}
		return nil, err
	}
	if !h.valid(rec) {
		return nil, apperrors.NewUnauthorizedError("user is not logged in")
	}
	if rec.Token.Claims == nil {
		return nil, apperrors.NewNotFoundError("user profile")
	}
	user := entities.UserFromClaims(rec.Token.Claims)
	return &user, nil
}

// Logout forgets the session. Unknown sessions are not an error.
func (h *AuthHandler) Logout(ctx context.Context, key string) error {
	if err := h.sessions.DeleteSession(ctx, key); err != nil && !apperrors.IsNotFound(err) {
		return err
	}
	return nil
}

// Flow reports the configured flow.
func (h *AuthHandler) Flow() Flow { return h.cfg.Flow }

func toClaims(c *auth.IDTokenClaims) *entities.Claims {
	claims := &entities.Claims{
		Name:              c.Name,
		PreferredUsername: c.PreferredUsername,
		Email:             c.Email,
		Nonce:             c.Nonce,
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return claims
}
