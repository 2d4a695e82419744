package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/mcp-inspector-go/auth"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestRoot_PrintsExamplesWithoutCommand(t *testing.T) {
	_, stderr, err := execute(t, "--addr", "127.0.0.1:0")
	require.ErrorIs(t, err, errNoCommand)
	require.Contains(t, stderr, "mcp-inspector -- npx -y @modelcontextprotocol/server-filesystem /tmp")
}

func TestRoot_RejectsUnknownFraming(t *testing.T) {
	_, _, err := execute(t, "--framing", "xml", "--", "server")
	require.Error(t, err)
	require.Contains(t, err.Error(), "framing")
}

func TestToken_MintsVerifiableToken(t *testing.T) {
	secret := "a-long-enough-shared-secret-value"
	stdout, _, err := execute(t, "token", "--secret", secret, "--subject", "alice", "--ttl", "1m")
	require.NoError(t, err)

	authn, err := auth.NewSharedSecret([]byte(secret))
	require.NoError(t, err)
	ui, err := authn.CheckAuthentication(context.Background(), strings.TrimSpace(stdout))
	require.NoError(t, err)
	require.Equal(t, "alice", ui.UserID())
}

func TestToken_AudienceFromEnvironment(t *testing.T) {
	secret := "a-long-enough-shared-secret-value"
	t.Setenv("MCP_INSPECTOR_AUTH_AUDIENCES", "inspector")
	stdout, _, err := execute(t, "token", "--secret", secret, "--subject", "carol")
	require.NoError(t, err)
	tok := strings.TrimSpace(stdout)

	matching, err := auth.NewSharedSecret([]byte(secret), auth.WithAudiences("other", "inspector"))
	require.NoError(t, err)
	_, err = matching.CheckAuthentication(context.Background(), tok)
	require.NoError(t, err)

	other, err := auth.NewSharedSecret([]byte(secret), auth.WithAudiences("other"))
	require.NoError(t, err)
	_, err = other.CheckAuthentication(context.Background(), tok)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	stdout, _, err = execute(t, "token", "--secret", secret, "--subject", "carol", "--audience", "other")
	require.NoError(t, err)
	_, err = other.CheckAuthentication(context.Background(), strings.TrimSpace(stdout))
	require.NoError(t, err)
}

func TestToken_SecretFromEnvironment(t *testing.T) {
	t.Setenv("MCP_INSPECTOR_AUTH_SECRET", "secret-from-the-environment-0000")
	stdout, _, err := execute(t, "token", "--subject", "bob")
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(strings.TrimSpace(stdout), "."))
}

func TestToken_RequiresSecret(t *testing.T) {
	t.Setenv("MCP_INSPECTOR_AUTH_SECRET", "")
	_, _, err := execute(t, "token", "--subject", "bob")
	require.Error(t, err)
}

func TestCall_RequiresToolName(t *testing.T) {
	_, _, err := execute(t, "call", "--", "server")
	require.Error(t, err)
}

func TestCall_RejectsNonObjectArgs(t *testing.T) {
	_, _, err := execute(t, "call", "echo", "--args", "[1,2]", "--", "server")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--args")
}
