package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid id token")
	ErrTokenExpired = errors.New("id token expired")
)

// IDTokenClaims are the OpenID Connect claims read from an id token.
type IDTokenClaims struct {
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	Nonce             string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

// KeySource supplies the key set tokens are checked against.
type KeySource interface {
	Fetch(ctx context.Context) (*KeySet, error)
}

// IDTokenVerifier checks RS256 signature, audience and expiry of id tokens.
type IDTokenVerifier struct {
	keys     KeySource
	audience string
	issuer   string
	now      func() time.Time
}

// NewIDTokenVerifier returns a verifier for tokens issued to audience. An
// empty issuer skips the iss check, which multi-tenant endpoints require.
func NewIDTokenVerifier(keys KeySource, audience, issuer string) *IDTokenVerifier {
	return &IDTokenVerifier{keys: keys, audience: audience, issuer: issuer, now: time.Now}
}

// Verify returns the claims of a valid token. Errors wrap ErrKeyNotFound,
// ErrKeySetUnavailable, ErrTokenExpired or ErrInvalidToken.
func (v *IDTokenVerifier) Verify(ctx context.Context, raw string) (*IDTokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var keyErr error
	claims := &IDTokenClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			keyErr = fmt.Errorf("%w: token header has no kid", ErrInvalidToken)
			return nil, keyErr
		}
		set, err := v.keys.Fetch(ctx)
		if err != nil {
			keyErr = err
			return nil, err
		}
		key, err := set.RSAPublicKey(kid)
		if err != nil {
			keyErr = err
			return nil, err
		}
		return key, nil
	})
	if err == nil {
		return claims, nil
	}

	switch {
	case keyErr != nil && (errors.Is(keyErr, ErrKeyNotFound) || errors.Is(keyErr, ErrKeySetUnavailable)):
		return nil, keyErr
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

// ParseUnverifiedClaims reads the claims of a token without checking its
// signature. Only use it on tokens received directly from the provider's
// token endpoint over TLS.
func ParseUnverifiedClaims(raw string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
