// Package jwtauth validates and mints HS256 bearer tokens for the inspector's
// HTTP API. Tokens are signed with a shared secret; there is no discovery.
package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized indicates that the token failed validation (bad signature,
// expired, wrong issuer or audience, missing subject).
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// ErrNoSecret is returned when no signing secret is configured.
var ErrNoSecret = errors.New("jwtauth: secret is required")

// Config controls validation and minting.
type Config struct {
	// Issuer, when set, is written into minted tokens and required on
	// validated ones.
	Issuer string
	// Audiences, when non-empty, must intersect the token's aud claim. The
	// first entry is used when minting.
	Audiences   []string
	AllowedAlgs []string
	Leeway      time.Duration
}

// DefaultConfig returns a Config with safe defaults for algorithm and leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{jwt.SigningMethodHS256.Alg()},
		Leeway:      60 * time.Second,
	}
}

// UserInfo is the internal user claims carrier for validated tokens.
// It mirrors the minimal contract needed by the public auth package.
type UserInfo interface {
	UserID() string
	Claims(ref any) error
}

// userInfo is the concrete implementation of UserInfo.
type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }
func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Authenticator validates access tokens and returns a minimal UserInfo
// that exposes the subject and access to raw claims.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

type sharedAuthenticator struct {
	cfg    Config
	secret []byte
}

// NewShared constructs an authenticator for tokens signed with secret.
func NewShared(secret []byte, cfg *Config) (*sharedAuthenticator, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	c := normalize(cfg)
	return &sharedAuthenticator{cfg: c, secret: slices.Clone(secret)}, nil
}

func normalize(cfg *Config) Config {
	c := *DefaultConfig()
	if cfg != nil {
		c.Issuer = cfg.Issuer
		c.Audiences = slices.Clone(cfg.Audiences)
		if len(cfg.AllowedAlgs) > 0 {
			c.AllowedAlgs = slices.Clone(cfg.AllowedAlgs)
		}
		if cfg.Leeway > 0 {
			c.Leeway = cfg.Leeway
		}
	}
	return c
}

// CheckAuthentication implements Authenticator.
func (a *sharedAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(a.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.cfg.Leeway),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}

	parsed, err := jwt.NewParser(opts...).Parse(tok, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	if len(a.cfg.Audiences) > 0 && !audIntersects(claims["aud"], a.cfg.Audiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return &userInfo{sub: sub, claims: claims}, nil
}

// Mint signs a token for subject that expires after ttl.
func Mint(secret []byte, cfg *Config, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	if subject == "" {
		return "", errors.New("jwtauth: subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("jwtauth: ttl must be positive")
	}
	c := normalize(cfg)

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    c.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if len(c.Audiences) > 0 {
		claims.Audience = jwt.ClaimStrings{c.Audiences[0]}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("jwtauth: failed to sign token: %w", err)
	}
	return signed, nil
}

func audIntersects(aud any, wants []string) bool {
	switch v := aud.(type) {
	case string:
		return slices.Contains(wants, v)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && slices.Contains(wants, s) {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if slices.Contains(wants, s) {
				return true
			}
		}
	}
	return false
}

var _ Authenticator = (*sharedAuthenticator)(nil)
