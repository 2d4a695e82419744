package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-inspector-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-inspector-go/internal/logctx"
	"github.com/ggoodman/mcp-inspector-go/mcp"
)

// ErrorMarkerField is the key under which a server error envelope is carried
// in a Result value.
const ErrorMarkerField = "_error"

// maxListPages bounds how many nextCursor pages a list operation follows.
const maxListPages = 32

// Status classifies the outcome of an action request.
type Status int

const (
	// StatusOK means the server answered with a result, which may be null.
	StatusOK Status = iota
	// StatusError means the server answered with a JSON-RPC error.
	StatusError
	// StatusNoResponse means no usable answer was obtained: timeout, write
	// failure, child exit, a session that is not running or a response
	// carrying neither result nor error.
	StatusNoResponse
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusNoResponse:
		return "no_response"
	default:
		return "unknown"
	}
}

// Result is the outcome of CallTool, ReadResource or GetPrompt.
type Result struct {
	Status Status
	// Value is the raw result for StatusOK and {"_error": {...}} for
	// StatusError. It is nil for StatusNoResponse.
	Value json.RawMessage
	// Err explains a StatusNoResponse outcome. It is informational only.
	Err error
}

// ListTools returns the server's tools. Faults yield an empty list.
func (s *Session) ListTools(ctx context.Context) []mcp.Descriptor {
	return s.list(ctx, mcp.ToolsListMethod, func(raw json.RawMessage) ([]mcp.Descriptor, string, error) {
		var res mcp.ListToolsResult
		err := json.Unmarshal(raw, &res)
		return res.Tools, res.NextCursor, err
	})
}

// ListResources returns the server's resources. Faults yield an empty list.
func (s *Session) ListResources(ctx context.Context) []mcp.Descriptor {
	return s.list(ctx, mcp.ResourcesListMethod, func(raw json.RawMessage) ([]mcp.Descriptor, string, error) {
		var res mcp.ListResourcesResult
		err := json.Unmarshal(raw, &res)
		return res.Resources, res.NextCursor, err
	})
}

// ListResourceTemplates returns the server's resource templates. Faults
// yield an empty list.
func (s *Session) ListResourceTemplates(ctx context.Context) []mcp.Descriptor {
	return s.list(ctx, mcp.ResourcesTemplatesListMethod, func(raw json.RawMessage) ([]mcp.Descriptor, string, error) {
		var res mcp.ListResourceTemplatesResult
		err := json.Unmarshal(raw, &res)
		return res.ResourceTemplates, res.NextCursor, err
	})
}

// ListPrompts returns the server's prompts. Faults yield an empty list.
func (s *Session) ListPrompts(ctx context.Context) []mcp.Descriptor {
	return s.list(ctx, mcp.PromptsListMethod, func(raw json.RawMessage) ([]mcp.Descriptor, string, error) {
		var res mcp.ListPromptsResult
		err := json.Unmarshal(raw, &res)
		return res.Prompts, res.NextCursor, err
	})
}

type pageDecoder func(raw json.RawMessage) (items []mcp.Descriptor, next string, err error)

// list follows nextCursor pages. A failing page ends the walk and keeps the
// items gathered so far.
func (s *Session) list(ctx context.Context, method mcp.Method, decode pageDecoder) []mcp.Descriptor {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: string(method), Type: "request"})

	out := []mcp.Descriptor{}
	seen := map[string]bool{}
	var cursor string
	for page := 0; page < maxListPages; page++ {
		resp, err := s.request(ctx, method, mcp.PaginatedRequest{Cursor: cursor}, s.requestTimeout)
		if err != nil {
			s.log.DebugContext(ctx, "list request failed", slog.String("err", err.Error()))
			return out
		}
		if resp.Error != nil {
			s.log.DebugContext(ctx, "server refused list request",
				slog.String("code", resp.Error.Code.String()),
				slog.String("err", resp.Error.Error()))
			return out
		}
		if len(resp.Result) == 0 {
			s.log.DebugContext(ctx, "list response carried no result")
			return out
		}

		items, next, err := decode(resp.Result)
		if err != nil {
			s.log.DebugContext(ctx, "malformed list result", slog.String("err", err.Error()))
			return out
		}
		for _, d := range items {
			if d != nil {
				out = append(out, d)
			}
		}

		if next == "" || seen[next] {
			return out
		}
		seen[next] = true
		cursor = next
	}
	s.log.WarnContext(ctx, "list truncated after page limit", slog.Int("pages", maxListPages))
	return out
}

// CallTool invokes a tool. Nil arguments are sent as {}.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) Result {
	if args == nil {
		args = map[string]any{}
	}
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: name})
	return s.action(ctx, mcp.ToolsCallMethod, mcp.CallToolRequest{Name: name, Arguments: args}, s.callTimeout)
}

// ReadResource reads the resource at uri.
func (s *Session) ReadResource(ctx context.Context, uri string) Result {
	return s.action(ctx, mcp.ResourcesReadMethod, mcp.ReadResourceRequest{URI: uri}, s.requestTimeout)
}

// GetPrompt renders a prompt. Nil arguments are sent as {}.
func (s *Session) GetPrompt(ctx context.Context, name string, args map[string]any) Result {
	if args == nil {
		args = map[string]any{}
	}
	return s.action(ctx, mcp.PromptsGetMethod, mcp.GetPromptRequest{Name: name, Arguments: args}, s.requestTimeout)
}

func (s *Session) action(ctx context.Context, method mcp.Method, params any, timeout time.Duration) Result {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: string(method), Type: "request"})

	resp, err := s.request(ctx, method, params, timeout)
	if err != nil {
		s.log.DebugContext(ctx, "no response", slog.String("err", err.Error()))
		return Result{Status: StatusNoResponse, Err: err}
	}
	if resp.Error != nil {
		s.log.DebugContext(ctx, "server returned error", slog.String("code", resp.Error.Code.String()))
		marked, merr := json.Marshal(map[string]*jsonrpc.Error{ErrorMarkerField: resp.Error})
		if merr != nil {
			return Result{Status: StatusNoResponse, Err: merr}
		}
		return Result{Status: StatusError, Value: marked}
	}
	if len(resp.Result) == 0 {
		s.log.DebugContext(ctx, "no response", slog.String("err", ErrNoResult.Error()))
		return Result{Status: StatusNoResponse, Err: ErrNoResult}
	}
	return Result{Status: StatusOK, Value: resp.Result}
}

func (s *Session) request(ctx context.Context, method mcp.Method, params any, timeout time.Duration) (*jsonrpc.Response, error) {
	conn, err := s.connection()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Call(ctx, string(method), params)
}
