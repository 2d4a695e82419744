package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/mcp-inspector-go/auth"
	"github.com/ggoodman/mcp-inspector-go/internal/config"
	"github.com/spf13/cobra"
)

const defaultTokenTTL = 24 * time.Hour

func newTokenCommand(global *globalOptions) *cobra.Command {
	var (
		secret    string
		subject   string
		issuer    string
		audiences []string
		ttl       time.Duration
		users     auth.UserProvider = auth.OSUserProvider{}
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an inspector started with --auth-secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(global.configPath)
			if err != nil {
				return err
			}
			if secret == "" {
				secret = cfg.Auth.Secret
			}
			if secret == "" {
				return errors.New("a secret is required (set --secret or MCP_INSPECTOR_AUTH_SECRET)")
			}
			if issuer != "" {
				cfg.Auth.Issuer = issuer
			}
			if len(audiences) > 0 {
				cfg.Auth.Audiences = audiences
			}
			if subject == "" {
				if subject, err = users.CurrentUserID(); err != nil {
					return fmt.Errorf("failed to resolve current user: %w", err)
				}
			}

			tok, err := auth.MintToken([]byte(secret), subject, ttl, authOptions(cfg.Auth)...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&secret, "secret", "", "Shared secret the inspector validates tokens with")
	f.StringVar(&subject, "subject", "", "Token subject (defaults to the current OS user)")
	f.StringVar(&issuer, "issuer", "", "Token issuer")
	f.StringSliceVar(&audiences, "audience", nil, "Token audience; the first is written into the token")
	f.DurationVar(&ttl, "ttl", defaultTokenTTL, "Token lifetime")
	return cmd
}
