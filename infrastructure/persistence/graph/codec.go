package graph

import (
	"fmt"
	"math"
	"time"

	"topicref/domain/core/entities"
	"topicref/pkg/utils"
)

func encodeReference(ref entities.StoredReference) map[string]any {
	props := ref.Reference.Properties()
	props["id"] = ref.ID
	props["kind"] = string(ref.Reference.Kind())
	props["created_at"] = utils.ToMillis(ref.CreatedAt)
	return props
}

// decodeReference rebuilds a stored reference from its node properties. Nodes
// without a kind property are classified by their field set.
func decodeReference(value any) (entities.StoredReference, error) {
	props, ok := value.(map[string]any)
	if !ok {
		return entities.StoredReference{}, fmt.Errorf("reference row is %T, not a property map", value)
	}
	id, _ := props["id"].(string)

	var kind entities.Kind
	if tag, ok := props["kind"].(string); ok && tag != "" {
		kind = entities.Kind(tag)
	} else {
		classified, err := entities.ClassifyProperties(props)
		if err != nil {
			return entities.StoredReference{}, fmt.Errorf("reference %q: %w", id, err)
		}
		kind = classified
	}

	ref, err := entities.ReferenceFromProperties(kind, props)
	if err != nil {
		return entities.StoredReference{}, fmt.Errorf("reference %q: %w", id, err)
	}
	createdAt, _ := asInt64(props["created_at"])
	return entities.StoredReference{ID: id, CreatedAt: utils.FromMillis(createdAt), Reference: ref}, nil
}

// Session nodes hold the token flattened into prefixed properties.
const (
	propKey          = "key"
	propVerifier     = "verifier"
	propNonce        = "nonce"
	propCreatedAt    = "created_at"
	propAccessToken  = "token_access"
	propTokenType    = "token_type"
	propRefreshToken = "token_refresh"
	propIDToken      = "token_id"
	propIssuedAt     = "token_issued_at"
	propExpiresIn    = "token_expires_in"
	propClaimName    = "claim_name"
	propClaimUser    = "claim_preferred_username"
	propClaimEmail   = "claim_email"
	propClaimNonce   = "claim_nonce"
	propClaimExp     = "claim_exp"
)

var tokenProps = []string{
	propAccessToken, propTokenType, propRefreshToken, propIDToken, propIssuedAt,
	propExpiresIn, propClaimName, propClaimUser, propClaimEmail, propClaimNonce, propClaimExp,
}

func encodeSession(key string, rec entities.SessionRecord) map[string]any {
	props := map[string]any{
		propKey:       key,
		propVerifier:  rec.Verifier,
		propNonce:     rec.Nonce,
		propCreatedAt: utils.ToMillis(rec.CreatedAt),
	}
	if rec.Token != nil {
		for k, v := range encodeToken(*rec.Token) {
			if v != nil {
				props[k] = v
			}
		}
	}
	return props
}

// encodeToken maps every token property, using nil for absent values so the
// update removes them.
func encodeToken(t entities.Token) map[string]any {
	props := make(map[string]any, len(tokenProps))
	for _, k := range tokenProps {
		props[k] = nil
	}
	setString(props, propAccessToken, t.AccessToken)
	setString(props, propTokenType, t.TokenType)
	setString(props, propRefreshToken, t.RefreshToken)
	setString(props, propIDToken, t.IDToken)
	props[propIssuedAt] = utils.ToMillis(t.IssuedAt)
	if t.ExpiresIn > 0 {
		props[propExpiresIn] = int64(t.ExpiresIn / time.Second)
	}
	if c := t.Claims; c != nil {
		setString(props, propClaimName, c.Name)
		setString(props, propClaimUser, c.PreferredUsername)
		setString(props, propClaimEmail, c.Email)
		setString(props, propClaimNonce, c.Nonce)
		if !c.ExpiresAt.IsZero() {
			props[propClaimExp] = utils.ToMillis(c.ExpiresAt)
		}
	}
	return props
}

func decodeSession(value any) (*entities.SessionRecord, error) {
	props, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("session row is %T, not a property map", value)
	}
	key, ok := props[propKey].(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("session node has no key")
	}
	createdAt, _ := asInt64(props[propCreatedAt])
	rec := &entities.SessionRecord{
		Key:       key,
		Verifier:  asString(props[propVerifier]),
		Nonce:     asString(props[propNonce]),
		CreatedAt: utils.FromMillis(createdAt),
	}

	issuedAt, hasToken := asInt64(props[propIssuedAt])
	if !hasToken {
		return rec, nil
	}
	token := &entities.Token{
		AccessToken:  asString(props[propAccessToken]),
		TokenType:    asString(props[propTokenType]),
		RefreshToken: asString(props[propRefreshToken]),
		IDToken:      asString(props[propIDToken]),
		IssuedAt:     utils.FromMillis(issuedAt),
	}
	if secs, ok := asInt64(props[propExpiresIn]); ok {
		token.ExpiresIn = time.Duration(secs) * time.Second
	}
	claims := entities.Claims{
		Name:              asString(props[propClaimName]),
		PreferredUsername: asString(props[propClaimUser]),
		Email:             asString(props[propClaimEmail]),
		Nonce:             asString(props[propClaimNonce]),
	}
	if exp, ok := asInt64(props[propClaimExp]); ok {
		claims.ExpiresAt = utils.FromMillis(exp)
	}
	if claims != (entities.Claims{}) {
		token.Claims = &claims
	}
	rec.Token = token
	return rec, nil
}

func setString(props map[string]any, key, value string) {
	if value != "" {
		props[key] = value
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

func stringColumn(rows []Record, column string) ([]string, error) {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		s, ok := row[column].(string)
		if !ok {
			return nil, fmt.Errorf("column %q is %T, not a string", column, row[column])
		}
		out = append(out, s)
	}
	return out, nil
}
