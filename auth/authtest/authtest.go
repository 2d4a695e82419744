// Package authtest provides Authenticator fakes for handler tests.
package authtest

import (
	"context"
	"fmt"

	"github.com/ggoodman/mcp-inspector-go/auth"
)

// Static accepts a fixed set of tokens, each mapped to a user ID.
type Static struct {
	Tokens map[string]string
}

// NewStatic creates a Static authenticator accepting token for userID.
// If userID is empty, it defaults to "test-user".
func NewStatic(token, userID string) *Static {
	if userID == "" {
		userID = "test-user"
	}
	return &Static{Tokens: map[string]string{token: userID}}
}

// CheckAuthentication accepts known tokens and rejects everything else with
// auth.ErrUnauthorized.
func (s *Static) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	id, ok := s.Tokens[tok]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", auth.ErrUnauthorized)
	}
	return &staticUserInfo{userID: id}, nil
}

// staticUserInfo provides user info for the Static authenticator
type staticUserInfo struct {
	userID string
}

func (u *staticUserInfo) UserID() string {
	return u.userID
}

func (u *staticUserInfo) Claims(ref any) error {
	return nil // No claims to unmarshal
}
