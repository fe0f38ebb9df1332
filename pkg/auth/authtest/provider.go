// Package authtest runs a stand-in identity provider for tests: a token
// endpoint and a JWKS endpoint backed by an in-memory RSA key.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"topicref/pkg/auth"
)

const (
	TokenPath = "/oauth2/v2.0/token"
	JWKSPath  = "/discovery/v2.0/keys"
)

type Provider struct {
	Server   *httptest.Server
	Key      *rsa.PrivateKey
	KeyID    string
	ClientID string

	mu            sync.Mutex
	tokenStatus   int
	tokenBody     map[string]any
	jwksStatus    int
	tokenRequests []url.Values
	jwksRequests  int
}

// NewProvider starts the provider and stops it when the test ends.
func NewProvider(t testing.TB, clientID string) *Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	p := &Provider{Key: key, KeyID: "test-key", ClientID: clientID, tokenStatus: http.StatusOK, jwksStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc(TokenPath, p.serveToken)
	mux.HandleFunc(JWKSPath, p.serveJWKS)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// Host is the provider base URL, the equivalent of the IDP_HOST setting.
func (p *Provider) Host() string { return p.Server.URL }

func (p *Provider) JWKSURL() string { return p.Server.URL + JWKSPath }

// JWK returns the public half of the provider key.
func (p *Provider) JWK() auth.JSONWebKey {
	return auth.JSONWebKey{
		Kid: p.KeyID,
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(p.Key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(p.Key.E)).Bytes()),
	}
}

// Claims returns valid id token claims for the provider's client.
func (p *Provider) Claims(nonce string, ttl time.Duration) *auth.IDTokenClaims {
	now := time.Now()
	return &auth.IDTokenClaims{
		Name:              "Test Reader",
		PreferredUsername: "reader@example.com",
		Email:             "reader@example.com",
		Nonce:             nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "reader-1",
			Audience:  jwt.ClaimStrings{p.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// Sign signs claims with the provider key under kid.
func (p *Provider) Sign(t testing.TB, claims jwt.Claims, kid string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	raw, err := tok.SignedString(p.Key)
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return raw
}

// SetTokenResponse overrides what the token endpoint returns.
func (p *Provider) SetTokenResponse(status int, body map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenStatus, p.tokenBody = status, body
}

func (p *Provider) SetJWKSStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jwksStatus = status
}

// TokenRequests returns the forms posted to the token endpoint so far.
func (p *Provider) TokenRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.tokenRequests...)
}

func (p *Provider) JWKSRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jwksRequests
}

func (p *Provider) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.tokenRequests = append(p.tokenRequests, r.PostForm)
	status, body := p.tokenStatus, p.tokenBody
	p.mu.Unlock()

	if body == nil {
		body = map[string]any{
			"access_token": "access-" + r.PostForm.Get("code"),
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     p.signUnchecked(p.Claims("", time.Hour)),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (p *Provider) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	p.jwksRequests++
	status := p.jwksStatus
	p.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(auth.KeySet{Keys: []auth.JSONWebKey{p.JWK()}})
}

func (p *Provider) signUnchecked(claims jwt.Claims) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = p.KeyID
	raw, _ := tok.SignedString(p.Key)
	return raw
}
