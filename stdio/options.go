package stdio

import (
	"log/slog"

	"github.com/ggoodman/mcp-inspector-go/internal/framing"
	"github.com/ggoodman/mcp-inspector-go/internal/process"
)

// Option customizes a Conn.
type Option func(*Conn)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.log = l
		}
	}
}

// WithFraming selects the wire framing. The default is framing.ContentLength.
func WithFraming(k framing.Kind) Option {
	return func(c *Conn) {
		if k != "" {
			c.framing = k
		}
	}
}

// WithReadBufferSize sets the size of each read from the server's stdout.
func WithReadBufferSize(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.readBufSize = n
		}
	}
}

// WithProcessOptions forwards options to process.Start when dialing.
func WithProcessOptions(opts ...process.Option) Option {
	return func(c *Conn) {
		c.procOpts = append(c.procOpts, opts...)
	}
}
