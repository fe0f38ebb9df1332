package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrKeyNotFound means the token names a kid the key set does not hold.
	ErrKeyNotFound = errors.New("signing key not found in key set")
	// ErrKeySetUnavailable means the key set could not be fetched.
	ErrKeySetUnavailable = errors.New("key set unavailable")
)

// JSONWebKey is one entry of a JWKS document. Only RSA keys are used.
type JSONWebKey struct {
	Kid string   `json:"kid"`
	Kty string   `json:"kty"`
	Use string   `json:"use,omitempty"`
	Alg string   `json:"alg,omitempty"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	X5c []string `json:"x5c,omitempty"`
}

type KeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// RSAPublicKey returns the RSA key with the given kid.
func (s *KeySet) RSAPublicKey(kid string) (*rsa.PublicKey, error) {
	for _, k := range s.Keys {
		if k.Kid != kid {
			continue
		}
		if k.Kty != "RSA" {
			return nil, fmt.Errorf("key %q has type %q, want RSA", kid, k.Kty)
		}
		return k.rsaKey()
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

func (k JSONWebKey) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("key %q: bad modulus: %w", k.Kid, err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("key %q: bad exponent: %w", k.Kid, err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, fmt.Errorf("key %q: unusable exponent", k.Kid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// JWKSClient fetches the identity provider's current key set on every call,
// so key rotation needs no cache invalidation.
type JWKSClient struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewJWKSClient(url string, client *http.Client, logger *zap.Logger) *JWKSClient {
	return &JWKSClient{url: url, client: client, breaker: NewBreaker("jwks", nil, logger)}
}

func (c *JWKSClient) Fetch(ctx context.Context) (*KeySet, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("GET %s returned %d", c.url, resp.StatusCode)
		}
		var set KeySet
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
			return nil, fmt.Errorf("decode key set: %w", err)
		}
		return &set, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	return result.(*KeySet), nil
}
