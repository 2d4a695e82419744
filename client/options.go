package client

import (
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-inspector-go/internal/process"
	"github.com/ggoodman/mcp-inspector-go/mcp"
	"github.com/ggoodman/mcp-inspector-go/stdio"
)

const (
	// DefaultRequestTimeout bounds initialize, list, read and get requests.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultToolCallTimeout bounds tools/call.
	DefaultToolCallTimeout = 30 * time.Second
)

// Dialer opens the stdio connection for a command. stdio.Dial is the default;
// tests substitute in-process servers.
type Dialer func(command process.Command, opts ...stdio.Option) (*stdio.Conn, error)

// Option customizes a Session.
type Option func(*Session)

// WithLogger overrides the logger. It is also handed to the connection and
// the child process, which logs server stderr at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClientInfo overrides the identity sent in the initialize request.
func WithClientInfo(info mcp.ImplementationInfo) Option {
	return func(s *Session) { s.clientInfo = info }
}

// WithConnOptions forwards options to the stdio connection, for example
// stdio.WithFraming or stdio.WithProcessOptions.
func WithConnOptions(opts ...stdio.Option) Option {
	return func(s *Session) { s.connOpts = append(s.connOpts, opts...) }
}

// WithDialer replaces stdio.Dial.
func WithDialer(d Dialer) Option {
	return func(s *Session) {
		if d != nil {
			s.dial = d
		}
	}
}

// WithRequestTimeout sets the timeout for initialize, list, read and get.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithToolCallTimeout sets the timeout for tools/call.
func WithToolCallTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithGracePeriod sets how long Stop waits for the child before killing it.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.grace = d
		}
	}
}
