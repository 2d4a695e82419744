package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSharedSecret_RoundTrip(t *testing.T) {
	secret := []byte("a-long-enough-shared-secret-value")
	tok, err := MintToken(secret, "alice", time.Minute, WithIssuer("mcp-inspector"))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	authn, err := NewSharedSecret(secret, WithIssuer("mcp-inspector"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ui, err := authn.CheckAuthentication(context.Background(), tok)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "alice" {
		t.Fatalf("expected alice, got %q", ui.UserID())
	}

	other, err := NewSharedSecret(secret, WithIssuer("someone-else"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := other.CheckAuthentication(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header      string
		tok         string
		present, ok bool
	}{
		{"", "", false, true},
		{"Bearer abc", "abc", true, true},
		{"bearer   abc ", "abc", true, true},
		{"Basic dXNlcjpwYXNz", "", true, false},
		{"Bearer", "", true, false},
		{"Bearer  ", "", true, false},
	}
	for _, tc := range cases {
		tok, present, ok := BearerToken(tc.header)
		if tok != tc.tok || present != tc.present || ok != tc.ok {
			t.Errorf("BearerToken(%q) = (%q, %v, %v), want (%q, %v, %v)", tc.header, tok, present, ok, tc.tok, tc.present, tc.ok)
		}
	}
}

func TestChallenges(t *testing.T) {
	rec := httptest.NewRecorder()
	NewInvalidTokenResult("mcp-inspector", `bad "token"`).Write(rec)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	want := `Bearer realm="mcp-inspector", error="invalid_token", error_description="bad \"token\""`
	if got := rec.Header().Get("WWW-Authenticate"); got != want {
		t.Fatalf("unexpected challenge:\n got %s\nwant %s", got, want)
	}

	if c := NewInvalidAuthorizationHeader("x"); c.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed header, got %d", c.Status)
	}
	if c := NewAuthenticationRequired("x"); c.WWWAuthenticate != `Bearer realm="x"` {
		t.Fatalf("unexpected challenge %q", c.WWWAuthenticate)
	}
}
