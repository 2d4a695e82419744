package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ggoodman/mcp-inspector-go/client"
	"github.com/ggoodman/mcp-inspector-go/internal/config"
	"github.com/ggoodman/mcp-inspector-go/mcp"
	"github.com/spf13/cobra"
)

type serverSummary struct {
	Name            string         `json:"name"`
	Version         string         `json:"version"`
	ProtocolVersion string         `json:"protocolVersion,omitempty"`
	Instructions    string         `json:"instructions,omitempty"`
	Capabilities    map[string]any `json:"capabilities"`
	Command         string         `json:"command"`
}

type listing struct {
	Server            serverSummary    `json:"server"`
	Tools             []mcp.Descriptor `json:"tools"`
	Resources         []mcp.Descriptor `json:"resources"`
	ResourceTemplates []mcp.Descriptor `json:"resourceTemplates"`
	Prompts           []mcp.Descriptor `json:"prompts"`
}

func newListCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list -- <server_command> [args...]",
		Short: "Print the server's identity, tools, resources and prompts as JSON",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.load(cmd, serverCommand(cmd, args, 0), nil)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), cmd, cfg, func(ctx context.Context, s *client.Session) error {
				info := s.Info()
				out := listing{
					Server: serverSummary{
						Name:            info.Name,
						Version:         info.Version,
						ProtocolVersion: info.ProtocolVersion,
						Instructions:    info.Instructions,
						Capabilities:    info.Capabilities,
						Command:         info.Command.String(),
					},
					Tools:             s.ListTools(ctx),
					Resources:         s.ListResources(ctx),
					ResourceTemplates: s.ListResourceTemplates(ctx),
					Prompts:           s.ListPrompts(ctx),
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newCallCommand(global *globalOptions) *cobra.Command {
	var rawArgs string
	cmd := &cobra.Command{
		Use:   "call <tool> [--args JSON] -- <server_command> [args...]",
		Short: "Invoke one tool and print its result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.ArgsLenAtDash() == 0 {
				return errors.New("tool name is required before --")
			}
			tool := args[0]

			var toolArgs map[string]any
			if strings.TrimSpace(rawArgs) != "" {
				if err := json.Unmarshal([]byte(rawArgs), &toolArgs); err != nil {
					return fmt.Errorf("--args must be a JSON object: %w", err)
				}
			}

			cfg, err := global.load(cmd, serverCommand(cmd, args, 1), nil)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), cmd, cfg, func(ctx context.Context, s *client.Session) error {
				res := s.CallTool(ctx, tool, toolArgs)
				switch res.Status {
				case client.StatusNoResponse:
					_ = writeJSON(cmd.OutOrStdout(), map[string]string{"error": "No response"})
					return fmt.Errorf("no response from server: %w", res.Err)
				case client.StatusError:
					_ = writeJSON(cmd.OutOrStdout(), res.Value)
					return fmt.Errorf("tool %q failed", tool)
				default:
					return writeJSON(cmd.OutOrStdout(), res.Value)
				}
			})
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "", "Tool arguments as a JSON object")
	return cmd
}

// withSession starts a session for cfg, runs fn and stops the server.
func withSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, fn func(context.Context, *client.Session) error) error {
	log := newLogger(cmd.ErrOrStderr(), cfg)
	s := client.New(cfg.ProcessCommand(), sessionOptions(cfg, log)...)
	if err := s.Start(ctx); err != nil {
		_ = s.Stop()
		return err
	}
	defer func() {
		_ = s.Stop()
	}()
	return fn(ctx, s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
