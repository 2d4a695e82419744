package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-inspector-go/auth"
	"github.com/ggoodman/mcp-inspector-go/client"
	"github.com/ggoodman/mcp-inspector-go/internal/config"
	"github.com/ggoodman/mcp-inspector-go/internal/logctx"
	"github.com/ggoodman/mcp-inspector-go/internal/process"
	"github.com/ggoodman/mcp-inspector-go/stdio"
	"github.com/spf13/cobra"
)

var errNoCommand = errors.New("no server command given")

const usageExamples = `
  MCP Inspector
  -------------
  Usage: mcp-inspector [flags] -- <server_command> [args...]

  Examples:
    mcp-inspector -- npx -y @modelcontextprotocol/server-filesystem /tmp
    mcp-inspector -- python my_mcp_server.py
    mcp-inspector -- uvx mcp-server-git --repository ./repo
    mcp-inspector --addr :8080 -- node my_server.js
    mcp-inspector list -- node my_server.js
    mcp-inspector call echo --args '{"text":"hi"}' -- node my_server.js

`

// globalOptions holds the flags shared by every command.
type globalOptions struct {
	configPath string
	framing    string
	logLevel   string
	timeout    time.Duration
}

func (o *globalOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "Path to a YAML config file")
	f.StringVar(&o.framing, "framing", "", "Wire framing spoken by the server: content-length or ndjson")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.DurationVar(&o.timeout, "timeout", 0, "Timeout for initialize, list, read and get requests")
}

// load reads the config file and environment, lets changed flags override
// them and takes the server command from the arguments after "--". apply, if
// set, merges command specific flags before validation.
func (o *globalOptions) load(cmd *cobra.Command, command []string, apply func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("framing") {
		cfg.Framing = o.framing
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("timeout") {
		cfg.Timeouts.Request = o.timeout
	}
	if apply != nil {
		apply(cfg)
	}
	if len(command) > 0 {
		cfg.Command = command
	}
	if len(cfg.Command) == 0 {
		fmt.Fprint(cmd.ErrOrStderr(), usageExamples)
		return nil, errNoCommand
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// serverCommand returns the arguments after "--", or all positional
// arguments past skip when no dash was given.
func serverCommand(cmd *cobra.Command, args []string, skip int) []string {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		return args[dash:]
	}
	if len(args) <= skip {
		return nil
	}
	return args[skip:]
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	lvl, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(logctx.Handler{Handler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})})
}

// sessionOptions translates the config into client options.
func sessionOptions(cfg *config.Config, log *slog.Logger) []client.Option {
	procOpts := []process.Option{process.WithEnv(cfg.EnvList())}
	if cfg.Dir != "" {
		procOpts = append(procOpts, process.WithDir(cfg.Dir))
	}
	return []client.Option{
		client.WithLogger(log),
		client.WithRequestTimeout(cfg.Timeouts.Request),
		client.WithToolCallTimeout(cfg.Timeouts.ToolCall),
		client.WithGracePeriod(cfg.Timeouts.Grace),
		client.WithConnOptions(
			stdio.WithFraming(cfg.FramingKind()),
			stdio.WithProcessOptions(procOpts...),
		),
	}
}

// authOptions turns the auth section into token validation and minting
// options shared by the server and the token command.
func authOptions(a config.AuthConfig) []auth.AccessTokenAuthOption {
	var opts []auth.AccessTokenAuthOption
	if a.Issuer != "" {
		opts = append(opts, auth.WithIssuer(a.Issuer))
	}
	if len(a.Audiences) > 0 {
		opts = append(opts, auth.WithAudiences(a.Audiences...))
	}
	return opts
}
