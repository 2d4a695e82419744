package auth

import (
	"context"
	"errors"
	"time"

	"github.com/ggoodman/mcp-inspector-go/internal/jwtauth"
)

// AccessTokenAuthOption configures optional aspects of shared secret token
// validation and minting.
type AccessTokenAuthOption func(*jwtauth.Config)

// WithIssuer pins the iss claim.
func WithIssuer(issuer string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.Issuer = issuer }
}

// WithAudiences requires the aud claim to contain one of audiences. The first
// audience is written into minted tokens.
func WithAudiences(audiences ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.Audiences = append([]string(nil), audiences...)
	}
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

func buildConfig(opts []AccessTokenAuthOption) *jwtauth.Config {
	cfg := jwtauth.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewSharedSecret returns an Authenticator that verifies HS256 tokens signed
// with secret.
func NewSharedSecret(secret []byte, opts ...AccessTokenAuthOption) (Authenticator, error) {
	internal, err := jwtauth.NewShared(secret, buildConfig(opts))
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal}, nil
}

// MintToken signs a token for subject valid for ttl.
func MintToken(secret []byte, subject string, ttl time.Duration, opts ...AccessTokenAuthOption) (string, error) {
	return jwtauth.Mint(secret, buildConfig(opts), subject, ttl)
}

// adapter wraps the internal authenticator to satisfy the public interface.
type adapter struct {
	a jwtauth.Authenticator
}

func (ad *adapter) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	ui, err := ad.a.CheckAuthentication(ctx, tok)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return userInfoAdapter{ui: ui}, nil
}

type userInfoAdapter struct{ ui jwtauth.UserInfo }

func (u userInfoAdapter) UserID() string       { return u.ui.UserID() }
func (u userInfoAdapter) Claims(ref any) error { return u.ui.Claims(ref) }
