// Package client drives an MCP server over stdio: it runs the initialize
// handshake, records the server's identity and exposes the list, call, read
// and get operations as plain Go calls that never surface transport faults.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/ggoodman/mcp-inspector-go/internal/logctx"
	"github.com/ggoodman/mcp-inspector-go/internal/process"
	"github.com/ggoodman/mcp-inspector-go/mcp"
	"github.com/ggoodman/mcp-inspector-go/stdio"
)

var (
	// ErrHandshakeFailed wraps every failure of the initialize exchange.
	ErrHandshakeFailed = errors.New("initialize handshake failed")
	// ErrNotStarted is returned for requests on a session without a live
	// connection.
	ErrNotStarted = errors.New("session not started")
	// ErrNoResult explains a StatusNoResponse for a response that carried
	// neither a result nor an error.
	ErrNoResult = errors.New("response carried neither result nor error")
)

// Info is the server identity recorded by the handshake.
type Info struct {
	Name            string
	Version         string
	ProtocolVersion string
	Instructions    string
	Capabilities    map[string]any
	Command         process.Command
	Pid             int
}

// Session is one MCP server child and the handshake state around it. All
// methods are safe for concurrent use.
type Session struct {
	command    process.Command
	log        *slog.Logger
	clientInfo mcp.ImplementationInfo
	connOpts   []stdio.Option
	dial       Dialer

	requestTimeout time.Duration
	callTimeout    time.Duration
	grace          time.Duration

	mu    sync.Mutex
	state State
	conn  *stdio.Conn
	info  Info
}

// New prepares a session for command. Nothing is spawned until Start.
func New(command process.Command, opts ...Option) *Session {
	s := &Session{
		command:        append(process.Command(nil), command...),
		log:            slog.New(slog.DiscardHandler),
		clientInfo:     mcp.ImplementationInfo{Name: "mcp-inspector", Version: "1.0.0"},
		dial:           stdio.Dial,
		requestTimeout: DefaultRequestTimeout,
		callTimeout:    DefaultToolCallTimeout,
		grace:          process.DefaultGracePeriod,
		state:          StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.info.Command = s.command
	return s
}

// Start spawns the server and performs the initialize handshake. On failure
// the child is terminated and the error wraps ErrHandshakeFailed; the session
// stays in StateInitializing and cannot be restarted.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	next, err := Transition(s.state, EventSpawn)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	opts := append([]stdio.Option{stdio.WithLogger(s.log)}, s.connOpts...)
	conn, err := s.dial(s.command, opts...)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to start %q: %w", s.command.String(), err)
	}
	s.state = next
	s.conn = conn
	s.info.Pid = conn.Pid()
	s.mu.Unlock()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{State: string(StateInitializing), Pid: conn.Pid()})
	s.log.DebugContext(ctx, "server spawned", slog.String("command", s.command.String()))

	res, err := s.handshake(ctx, conn)
	if err != nil {
		if cerr := conn.Close(s.grace); cerr != nil {
			s.log.DebugContext(ctx, "failed to stop server after handshake failure", slog.String("err", cerr.Error()))
		}
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	s.mu.Lock()
	next, err = Transition(s.state, EventInitialized)
	if err != nil {
		// Stopped while the handshake was in flight.
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	s.state = next
	s.info.Name = res.ServerInfo.Name
	s.info.Version = res.ServerInfo.Version
	s.info.ProtocolVersion = res.ProtocolVersion
	s.info.Instructions = res.Instructions
	s.info.Capabilities = res.Capabilities
	if s.info.Capabilities == nil {
		s.info.Capabilities = map[string]any{}
	}
	s.mu.Unlock()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		ServerName:      res.ServerInfo.Name,
		ProtocolVersion: res.ProtocolVersion,
		State:           string(StateInitialized),
		Pid:             conn.Pid(),
	})

	if err := conn.Notify(ctx, string(mcp.InitializedNotificationMethod), nil); err != nil {
		s.log.WarnContext(ctx, "failed to send initialized notification", slog.String("err", err.Error()))
	}
	s.log.InfoContext(ctx, "connected to server", slog.String("version", res.ServerInfo.Version))
	return nil
}

func (s *Session) handshake(ctx context.Context, conn *stdio.Conn) (*mcp.InitializeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	resp, err := conn.Call(ctx, string(mcp.InitializeMethod), mcp.NewInitializeRequest(s.clientInfo))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	var res mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		return nil, fmt.Errorf("failed to decode initialize result: %w", err)
	}
	return &res, nil
}

// Stop terminates the child, waiting up to the grace period before killing
// it. Pending requests fail immediately. Stopping twice is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	next, err := Transition(s.state, EventStop)
	if err != nil {
		s.mu.Unlock()
		return nil
	}
	s.state = next
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.log.Debug("stopping server", slog.Int("pid", conn.Pid()))
	return conn.Close(s.grace)
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a copy of the recorded server identity. Before the handshake
// completes only Command (and Pid once spawned) are set.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	info.Command = append(process.Command(nil), s.info.Command...)
	info.Capabilities = maps.Clone(s.info.Capabilities)
	return info
}

// Done is closed once the server's output ends, usually because the child
// exited. It never fires for a session that was not started.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Done()
}

func (s *Session) connection() (*stdio.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.state == StateClosed {
		return nil, ErrNotStarted
	}
	return s.conn, nil
}
