// Package auth guards the inspector's HTTP API with bearer tokens.
//
// The public surface stays small: an Authenticator validates a bearer token
// string and returns a UserInfo (or an error wrapping ErrUnauthorized). The
// HTTP layer extracts the token from the Authorization header and maps
// failures onto challenges built with the helpers in result.go.
//
// # Shared Secret Tokens
//
// NewSharedSecret verifies HS256 JWTs signed with a secret the operator
// configures; MintToken issues such tokens for local tooling.
//
// Example:
//
//	authn, err := auth.NewSharedSecret([]byte(secret), auth.WithIssuer("mcp-inspector"))
//	if err != nil { log.Fatal(err) }
//	tok, _ := auth.MintToken([]byte(secret), "alice", time.Hour, auth.WithIssuer("mcp-inspector"))
//
// # Local Identity
//
// OSUserProvider resolves the current operating system user, which the CLI
// uses as the default token subject.
package auth
