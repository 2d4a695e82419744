package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ggoodman/mcp-inspector-go/auth"
	"github.com/ggoodman/mcp-inspector-go/inspector"
	"github.com/ggoodman/mcp-inspector-go/internal/config"
	"github.com/ggoodman/mcp-inspector-go/internal/supervisor"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	addr       string
	watch      []string
	restart    bool
	authSecret string
}

func newRootCommand() *cobra.Command {
	var (
		global globalOptions
		serve  serveOptions
	)

	root := &cobra.Command{
		Use:   "mcp-inspector [flags] -- <server_command> [args...]",
		Short: "Inspect an MCP server over stdio",
		Long: `Runs an MCP server as a child process, performs the initialize handshake and
serves its tools, resources, resource templates and prompts through a local
JSON HTTP API.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &global, &serve, serverCommand(cmd, args, 0))
		},
	}

	global.register(root)
	f := root.Flags()
	f.StringVar(&serve.addr, "addr", config.DefaultAddr, "Address for the HTTP API")
	f.StringSliceVar(&serve.watch, "watch", nil, "Restart the server when these paths change")
	f.BoolVar(&serve.restart, "restart", false, "Restart the server when it exits")
	f.StringVar(&serve.authSecret, "auth-secret", "", "Require HS256 bearer tokens signed with this secret")

	root.AddCommand(
		newListCommand(&global),
		newCallCommand(&global),
		newTokenCommand(&global),
	)
	return root
}

func runServe(cmd *cobra.Command, global *globalOptions, serve *serveOptions, command []string) error {
	flags := cmd.Flags()
	cfg, err := global.load(cmd, command, func(c *config.Config) {
		if flags.Changed("addr") {
			c.Addr = serve.addr
		}
		if flags.Changed("watch") {
			c.Watch = append(c.Watch, serve.watch...)
		}
		if flags.Changed("restart") {
			c.Restart.Enabled = serve.restart
		}
		if flags.Changed("auth-secret") {
			c.Auth.Secret = serve.authSecret
		}
	})
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr(), cfg)

	handlerOpts := []inspector.Option{inspector.WithLogger(log)}
	if cfg.Auth.Secret != "" {
		authn, err := auth.NewSharedSecret([]byte(cfg.Auth.Secret), authOptions(cfg.Auth)...)
		if err != nil {
			return fmt.Errorf("failed to configure authentication: %w", err)
		}
		handlerOpts = append(handlerOpts, inspector.WithAuthenticator(authn))
	}

	sup := supervisor.New(cfg.ProcessCommand(),
		supervisor.WithLogger(log),
		supervisor.WithSessionOptions(sessionOptions(cfg, log)...),
		supervisor.WithRestartOnExit(cfg.Restart.Enabled),
		supervisor.WithWatch(cfg.Watch...),
		supervisor.WithBackoff(0, cfg.Restart.MaxBackoff, cfg.Restart.MaxElapsed),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           inspector.New(sup, handlerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	supDone := make(chan error, 1)
	go func() { supDone <- sup.Run(ctx) }()
	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Serve(ln) }()

	log.InfoContext(ctx, "inspector listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("command", cfg.ProcessCommand().String()))

	var runErr error
	supRunning := true
	select {
	case <-ctx.Done():
	case runErr = <-supDone:
		supRunning = false
	case err := <-srvDone:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", slog.String("err", err.Error()))
	}
	if supRunning {
		if err := <-supDone; err != nil && runErr == nil {
			runErr = err
		}
	}
	log.Info("inspector stopped")
	return runErr
}
