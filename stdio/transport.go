package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ggoodman/mcp-inspector-go/internal/framing"
	"github.com/ggoodman/mcp-inspector-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-inspector-go/internal/logctx"
)

// writeMux serializes frames onto the server's stdin. One frame is in flight
// at a time so concurrent writers never interleave bytes. Waiting for the
// slot and waiting for the write are both bounded by the caller's context.
type writeMux struct {
	kind framing.Kind
	w    io.Writer

	// sem holds a token while a frame is being written.
	sem chan struct{}
	bw  *bufio.Writer
}

func newWriteMux(w io.Writer, kind framing.Kind) *writeMux {
	return &writeMux{kind: kind, w: w, sem: make(chan struct{}, 1), bw: bufio.NewWriter(w)}
}

// writeJSONRPC encodes v and writes it as one frame. When ctx ends before the
// frame is flushed the call returns early; the frame keeps the slot until the
// underlying write returns, which closing the writer forces.
func (m *writeMux) writeJSONRPC(ctx context.Context, v any) error {
	frame, err := framing.Encode(m.kind, v)
	if err != nil {
		return err
	}

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting to write: %w", ctx.Err())
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-m.sem }()
		done <- m.flushFrame(frame)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		default:
			return fmt.Errorf("writing to server: %w", ctx.Err())
		}
	}
}

func (m *writeMux) flushFrame(frame []byte) error {
	if _, err := m.bw.Write(frame); err != nil {
		m.bw.Reset(m.w)
		return err
	}
	if err := m.bw.Flush(); err != nil {
		m.bw.Reset(m.w)
		return err
	}
	return nil
}

// jsonrpcWriter is the minimal writer contract backed by writeMux.
type jsonrpcWriter interface {
	writeJSONRPC(ctx context.Context, v any) error
}

// stdioTransport implements outbound.Transport over writeMux.
type stdioTransport struct {
	w   jsonrpcWriter
	log *slog.Logger
}

func (t stdioTransport) SendRequest(ctx context.Context, req *jsonrpc.Request) error {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: "request"})
	if err := t.w.writeJSONRPC(ctx, req); err != nil {
		t.log.DebugContext(ctx, "failed to send request", slog.String("err", err.Error()))
		return err
	}
	t.log.DebugContext(ctx, "request sent")
	return nil
}
