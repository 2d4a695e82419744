package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// AuthenticationChallenge describes an HTTP challenge (status + WWW-Authenticate header).
type AuthenticationChallenge struct {
	Status          int
	WWWAuthenticate string
}

// Write sends the challenge header and status. The body is left to the caller.
func (c *AuthenticationChallenge) Write(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", c.WWWAuthenticate)
	w.WriteHeader(c.Status)
}

// NewAuthenticationRequired builds a challenge indicating credentials are required.
func NewAuthenticationRequired(realm string) *AuthenticationChallenge {
	return &AuthenticationChallenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm=%s`, quote(realm)),
	}
}

// NewInvalidAuthorizationHeader builds a challenge for a malformed Authorization header.
func NewInvalidAuthorizationHeader(realm string) *AuthenticationChallenge {
	return &AuthenticationChallenge{
		Status:          http.StatusBadRequest,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm=%s, error="invalid_request", error_description="Invalid Authorization header"`, quote(realm)),
	}
}

// NewInvalidTokenResult builds a challenge indicating the token is invalid.
func NewInvalidTokenResult(realm string, description string) *AuthenticationChallenge {
	return &AuthenticationChallenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: fmt.Sprintf(`Bearer realm=%s, error="invalid_token", error_description=%s`, quote(realm), quote(description)),
	}
}

// quote renders s as an RFC 7230 quoted-string.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// BearerToken extracts the token from an Authorization header value. It
// reports ok=false when the header is present but not a bearer credential.
func BearerToken(header string) (token string, present bool, ok bool) {
	if header == "" {
		return "", false, true
	}
	scheme, tok, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", true, false
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", true, false
	}
	return tok, true, true
}
