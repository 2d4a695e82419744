package stdio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ggoodman/mcp-inspector-go/internal/framing"
	"github.com/ggoodman/mcp-inspector-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-inspector-go/internal/logctx"
	"github.com/ggoodman/mcp-inspector-go/internal/outbound"
	"github.com/ggoodman/mcp-inspector-go/internal/process"
	"github.com/ggoodman/mcp-inspector-go/mcp"
)

const defaultReadBufferSize = 32 << 10

// ErrConnectionClosed is the error pending and future calls fail with once
// the server's output has ended or the connection was closed.
var ErrConnectionClosed = errors.New("connection closed")

// Conn is a JSON-RPC connection to one MCP server speaking over stdio.
type Conn struct {
	log         *slog.Logger
	framing     framing.Kind
	readBufSize int
	procOpts    []process.Option

	proc *process.Process
	r    io.Reader
	w    *writeMux
	d    *outbound.Dispatcher

	// life is cancelled when the connection closes. It bounds writes that
	// have no caller, such as replies to server requests.
	life   context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error

	done    chan struct{}
	readErr error
}

func newConn(opts []Option) *Conn {
	c := &Conn{
		log:         slog.New(slog.DiscardHandler),
		framing:     framing.ContentLength,
		readBufSize: defaultReadBufferSize,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.life, c.cancel = context.WithCancel(context.Background())
	return c
}

// Dial spawns command and starts reading its stdout.
func Dial(command process.Command, opts ...Option) (*Conn, error) {
	c := newConn(opts)

	popts := append([]process.Option{process.WithLogger(c.log)}, c.procOpts...)
	p, err := process.Start(command, popts...)
	if err != nil {
		return nil, err
	}
	c.proc = p
	c.start(p.Stdout(), p.Stdin())
	return c, nil
}

// NewConn runs the protocol over an existing stream pair, for example an
// in-process server joined with io.Pipe. Close closes r and w when they
// implement io.Closer.
func NewConn(r io.Reader, w io.Writer, opts ...Option) *Conn {
	c := newConn(opts)
	c.start(r, w)
	return c
}

func (c *Conn) start(r io.Reader, w io.Writer) {
	c.r = r
	c.w = newWriteMux(w, c.framing)
	c.d = outbound.New(stdioTransport{w: c.w, log: c.log})
	go c.readLoop()
}

// Call sends method with params and waits for the matching response, ctx
// cancellation or the end of the connection. A JSON-RPC error response is
// returned as a response, not as an error.
func (c *Conn) Call(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	resp, err := c.d.Call(ctx, method, params)
	if err != nil {
		if errors.Is(err, outbound.ErrDispatcherClosed) {
			return nil, fmt.Errorf("%w: %w", ErrConnectionClosed, err)
		}
		return nil, err
	}
	return resp, nil
}

// Notify sends a notification. Nothing is registered and no reply is awaited.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: method, Type: "notification"})
	c.log.DebugContext(ctx, "sending notification")
	return c.w.writeJSONRPC(ctx, n)
}

// Done is closed when the reader goroutine has stopped.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that stopped the reader, io.EOF for a clean end of
// stream, or nil while the connection is live.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

// Pending reports the number of calls awaiting a response.
func (c *Conn) Pending() int { return c.d.Len() }

// Pid returns the child's process id, or 0 for connections made with NewConn.
func (c *Conn) Pid() int {
	if c.proc == nil {
		return 0
	}
	return c.proc.Pid()
}

// Exited is closed once the child has exited. For NewConn connections it is
// the same as Done.
func (c *Conn) Exited() <-chan struct{} {
	if c.proc == nil {
		return c.done
	}
	return c.proc.Exited()
}

// Close fails pending calls, then stops the child: stdin is closed, SIGTERM
// is sent and the child is killed if it outlives grace. Close is idempotent
// and returns the first result on later calls.
func (c *Conn) Close(grace time.Duration) error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.d.Close(ErrConnectionClosed)

		if c.proc != nil {
			c.closeErr = c.proc.Terminate(grace)
			c.log.Debug("server stopped",
				slog.String("command", c.proc.Command().String()),
				slog.Int("pid", c.proc.Pid()),
				slog.Any("exit", c.proc.ExitErr()))
		} else {
			if cl, ok := c.w.w.(io.Closer); ok {
				_ = cl.Close()
			}
			if cl, ok := c.r.(io.Closer); ok {
				_ = cl.Close()
			}
		}

		if grace <= 0 {
			grace = process.DefaultGracePeriod
		}
		select {
		case <-c.done:
		case <-time.After(grace):
			c.log.Warn("reader did not stop after close")
		}
	})
	return c.closeErr
}

func (c *Conn) readLoop() {
	defer close(c.done)

	dec := framing.NewDecoder(c.framing, framing.WithDropFunc(func(raw []byte, err error) {
		c.log.Debug("dropping undecodable frame", slog.String("err", err.Error()), slog.Int("bytes", len(raw)))
	}))

	buf := make([]byte, c.readBufSize)
	for {
		n, err := c.r.Read(buf)
		if n > 0 {
			for _, msg := range dec.Feed(buf[:n]) {
				c.handleMessage(msg)
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				err = io.EOF
			}
			if !errors.Is(err, io.EOF) {
				c.log.Warn("read from server failed", slog.String("err", err.Error()))
			}
			if dec.Buffered() > 0 {
				c.log.Debug("discarding partial frame", slog.Int("bytes", dec.Buffered()))
			}
			c.readErr = err
			c.cancel()
			c.d.Close(fmt.Errorf("%w: %w", ErrConnectionClosed, err))
			return
		}
	}
}

func (c *Conn) handleMessage(msg jsonrpc.AnyMessage) {
	switch msg.Type() {
	case "response":
		resp := msg.AsResponse()
		if !c.d.Resolve(resp) {
			c.log.Debug("dropping response with no pending request", slog.String("id", resp.ID.String()))
		}
	case "request":
		// Replies are written off the reader so a child that is not draining
		// its stdin cannot stall our reads of its stdout.
		go c.replyToServer(msg.AsRequest())
	case "notification":
		c.handleNotification(msg.AsNotification())
	}
}

func (c *Conn) handleNotification(n *jsonrpc.Notification) {
	ctx := logctx.WithRPCMessage(context.Background(), &logctx.RPCMessage{Method: n.Method, Type: "notification"})
	if mcp.Method(n.Method) != mcp.LoggingMessageNotificationMethod {
		c.log.DebugContext(ctx, "ignoring server notification")
		return
	}

	var params mcp.LoggingMessageParams
	if err := json.Unmarshal(n.Params, &params); err != nil {
		c.log.DebugContext(ctx, "malformed server log message", slog.String("err", err.Error()))
		return
	}
	c.log.DebugContext(ctx, "server log message",
		slog.String("severity", params.Level),
		slog.String("logger", params.Logger),
		slog.Any("data", params.Data))
}

// replyToServer answers requests the server initiates. Only ping is
// supported; everything else is refused with method-not-found.
func (c *Conn) replyToServer(req *jsonrpc.Request) {
	ctx := logctx.WithRPCMessage(c.life, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: "request"})

	var resp *jsonrpc.Response
	if mcp.Method(req.Method) == mcp.PingMethod {
		r, err := jsonrpc.NewResultResponse(req.ID, struct{}{})
		if err != nil {
			c.log.ErrorContext(ctx, "failed to build ping result", slog.String("err", err.Error()))
			return
		}
		resp = r
	} else {
		c.log.DebugContext(ctx, "refusing server request")
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found: "+req.Method, nil)
	}

	if err := c.w.writeJSONRPC(ctx, resp); err != nil {
		c.log.DebugContext(ctx, "failed to answer server request", slog.String("err", err.Error()))
	}
}
