package identity

import "strings"

// DefaultReferrer is where a completed login lands when none was given.
const DefaultReferrer = "/api/v1/"

const (
	statePrefix    = "State="
	referrerPrefix = "Referrer="
)

// EncodeState packs the state token and the post-login path into the single
// opaque value the provider echoes back.
func EncodeState(token, referrer string) string {
	return statePrefix + token + "&" + referrerPrefix + referrer
}

// ParseState reverses EncodeState. Everything after the first '&' belongs to
// the referrer, so referrers may carry their own query strings.
func ParseState(raw string) (token, referrer string) {
	head, tail, found := strings.Cut(raw, "&")
	token = strings.TrimPrefix(head, statePrefix)
	if found {
		referrer = strings.TrimPrefix(tail, referrerPrefix)
	}
	return token, referrer
}

// SafeReferrer keeps only same-origin absolute paths and falls back to
// DefaultReferrer for anything else.
func SafeReferrer(referrer string) string {
	if !strings.HasPrefix(referrer, "/") ||
		strings.HasPrefix(referrer, "//") ||
		strings.HasPrefix(referrer, "/\\") {
		return DefaultReferrer
	}
	return referrer
}
