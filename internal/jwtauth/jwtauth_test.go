package jwtauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestShared_MintThenValidate(t *testing.T) {
	cfg := &Config{Issuer: "mcp-inspector", Audiences: []string{"inspector-api"}}
	tok, err := Mint(testSecret, cfg, "alice", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	a, err := NewShared(testSecret, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ui, err := a.CheckAuthentication(context.Background(), tok)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "alice" {
		t.Fatalf("expected sub alice, got %q", ui.UserID())
	}

	var claims struct {
		Iss string `json:"iss"`
		Aud any    `json:"aud"`
	}
	if err := ui.Claims(&claims); err != nil {
		t.Fatalf("claims: %v", err)
	}
	if claims.Iss != "mcp-inspector" {
		t.Fatalf("unexpected iss %q", claims.Iss)
	}
}

func TestShared_Rejections(t *testing.T) {
	a, err := NewShared(testSecret, &Config{Issuer: "mcp-inspector", Audiences: []string{"inspector-api"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	now := time.Now()
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "alice",
			"iss": "mcp-inspector",
			"aud": "inspector-api",
			"exp": now.Add(time.Minute).Unix(),
		}
	}

	cases := []struct {
		name string
		tok  string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signClaims(t, jwt.SigningMethodHS256, []byte("other-secret-other-secret-000000"), valid())},
		{"expired", func() string {
			c := valid()
			c["exp"] = now.Add(-time.Hour).Unix()
			return signClaims(t, jwt.SigningMethodHS256, testSecret, c)
		}()},
		{"no exp", func() string {
			c := valid()
			delete(c, "exp")
			return signClaims(t, jwt.SigningMethodHS256, testSecret, c)
		}()},
		{"wrong issuer", func() string {
			c := valid()
			c["iss"] = "someone-else"
			return signClaims(t, jwt.SigningMethodHS256, testSecret, c)
		}()},
		{"wrong audience", func() string {
			c := valid()
			c["aud"] = []string{"other-api"}
			return signClaims(t, jwt.SigningMethodHS256, testSecret, c)
		}()},
		{"missing sub", func() string {
			c := valid()
			delete(c, "sub")
			return signClaims(t, jwt.SigningMethodHS256, testSecret, c)
		}()},
		{"disallowed alg", signClaims(t, jwt.SigningMethodHS512, testSecret, valid())},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.CheckAuthentication(context.Background(), tc.tok)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestShared_AudienceArrayIntersects(t *testing.T) {
	a, err := NewShared(testSecret, &Config{Audiences: []string{"inspector-api", "local"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tok := signClaims(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "bob",
		"aud": []string{"elsewhere", "local"},
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	if _, err := a.CheckAuthentication(context.Background(), tok); err != nil {
		t.Fatalf("expected audience intersection to pass, got %v", err)
	}
}

func TestShared_RequiresSecret(t *testing.T) {
	if _, err := NewShared(nil, nil); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
	if _, err := Mint(nil, nil, "alice", time.Minute); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
	if _, err := Mint(testSecret, nil, "", time.Minute); err == nil {
		t.Fatal("expected error for empty subject")
	}
	if _, err := Mint(testSecret, nil, "alice", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
