package entities

import "time"

// SessionRecord tracks one login attempt from the moment the authorization
// URL is issued. Key is the random state token, which doubles as the session
// cookie value once the login completes.
type SessionRecord struct {
	Key       string
	Verifier  string // PKCE verifier, authorization code flow only
	Nonce     string // id_token flow only
	CreatedAt time.Time
	Token     *Token
}

// HasToken reports whether the login has completed.
func (s *SessionRecord) HasToken() bool {
	return s != nil && s.Token != nil
}

// Token is what the identity provider handed back.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	IDToken      string
	IssuedAt     time.Time
	ExpiresIn    time.Duration
	Claims       *Claims
}

// Expiry is IssuedAt+ExpiresIn when the provider reported a lifetime,
// otherwise the exp claim of the id token. ok is false when neither is known.
func (t *Token) Expiry() (exp time.Time, ok bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.ExpiresIn > 0 && !t.IssuedAt.IsZero() {
		return t.IssuedAt.Add(t.ExpiresIn), true
	}
	if t.Claims != nil && !t.Claims.ExpiresAt.IsZero() {
		return t.Claims.ExpiresAt, true
	}
	return time.Time{}, false
}

// Claims are the identity claims read from an id token.
type Claims struct {
	Name              string
	PreferredUsername string
	Email             string
	Nonce             string
	ExpiresAt         time.Time
}

// User is the public view of a logged in reader.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserFromClaims projects claims onto a User, falling back to the preferred
// username when no email claim was issued.
func UserFromClaims(c *Claims) User {
	email := c.Email
	if email == "" {
		email = c.PreferredUsername
	}
	return User{Name: c.Name, Email: email}
}
