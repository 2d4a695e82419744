package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-inspector-go/internal/framing"
	"github.com/ggoodman/mcp-inspector-go/internal/jsonrpc"
	"github.com/stretchr/testify/require"
)

// fakeServer sits on the far side of a pair of io.Pipes and lets a test play
// the MCP server by hand.
type fakeServer struct {
	t    *testing.T
	kind framing.Kind
	out  *io.PipeWriter
	msgs chan jsonrpc.AnyMessage
	mu   sync.Mutex
}

func newHarness(t *testing.T, kind framing.Kind, opts ...Option) (*Conn, *fakeServer) {
	t.Helper()

	inR, inW := io.Pipe()   // client -> server
	outR, outW := io.Pipe() // server -> client

	conn := NewConn(outR, inW, append([]Option{WithFraming(kind)}, opts...)...)
	srv := &fakeServer{t: t, kind: kind, out: outW, msgs: make(chan jsonrpc.AnyMessage, 256)}

	go func() {
		dec := framing.NewDecoder(kind)
		buf := make([]byte, 4096)
		for {
			n, err := inR.Read(buf)
			for _, m := range dec.Feed(buf[:n]) {
				srv.msgs <- m
			}
			if err != nil {
				close(srv.msgs)
				return
			}
		}
	}()

	t.Cleanup(func() {
		_ = conn.Close(time.Second)
		_ = outW.Close()
		_ = inR.Close()
	})
	return conn, srv
}

func (s *fakeServer) next(timeout time.Duration) jsonrpc.AnyMessage {
	s.t.Helper()
	select {
	case m, ok := <-s.msgs:
		require.True(s.t, ok, "client stream closed")
		return m
	case <-time.After(timeout):
		s.t.Fatal("timeout waiting for client message")
		return jsonrpc.AnyMessage{}
	}
}

func (s *fakeServer) send(v any) {
	s.t.Helper()
	frame, err := framing.Encode(s.kind, v)
	require.NoError(s.t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.out.Write(frame)
	require.NoError(s.t, err)
}

func (s *fakeServer) reply(id *jsonrpc.RequestID, result any) {
	s.t.Helper()
	resp, err := jsonrpc.NewResultResponse(id, result)
	require.NoError(s.t, err)
	s.send(resp)
}

// lockedBuffer collects log output written from the connection's goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type callResult struct {
	resp *jsonrpc.Response
	err  error
}

func goCall(c *Conn, ctx context.Context, method string, params any) <-chan callResult {
	ch := make(chan callResult, 1)
	go func() {
		resp, err := c.Call(ctx, method, params)
		ch <- callResult{resp, err}
	}()
	return ch
}

func TestConn_ResponsesMatchedByID(t *testing.T) {
	for _, kind := range []framing.Kind{framing.ContentLength, framing.NewlineDelimited} {
		t.Run(string(kind), func(t *testing.T) {
			conn, srv := newHarness(t, kind)
			ctx := context.Background()

			first := goCall(conn, ctx, "tools/list", map[string]any{})
			req1 := srv.next(time.Second)
			second := goCall(conn, ctx, "prompts/list", map[string]any{})
			req2 := srv.next(time.Second)

			require.Equal(t, "tools/list", req1.Method)
			require.Equal(t, "prompts/list", req2.Method)
			require.NotEqual(t, req1.ID.String(), req2.ID.String())

			// Answer in reverse order.
			srv.reply(req2.ID, map[string]any{"prompts": []any{}})
			srv.reply(req1.ID, map[string]any{"tools": []any{}})

			r1 := <-first
			r2 := <-second
			require.NoError(t, r1.err)
			require.NoError(t, r2.err)
			require.JSONEq(t, `{"tools":[]}`, string(r1.resp.Result))
			require.JSONEq(t, `{"prompts":[]}`, string(r2.resp.Result))
			require.Zero(t, conn.Pending())
		})
	}
}

func TestConn_ErrorResponseIsNotAGoError(t *testing.T) {
	conn, srv := newHarness(t, framing.ContentLength)

	res := goCall(conn, context.Background(), "tools/call", map[string]any{"name": "nope"})
	req := srv.next(time.Second)
	srv.send(jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "unknown tool", nil))

	r := <-res
	require.NoError(t, r.err)
	require.NotNil(t, r.resp.Error)
	require.Equal(t, jsonrpc.ErrorCodeInvalidParams, r.resp.Error.Code)
}

func TestConn_NotifyCarriesNoID(t *testing.T) {
	conn, srv := newHarness(t, framing.ContentLength)

	require.NoError(t, conn.Notify(context.Background(), "notifications/initialized", nil))
	msg := srv.next(time.Second)
	require.Equal(t, "notification", msg.Type())
	require.Equal(t, "notifications/initialized", msg.Method)
	require.Zero(t, conn.Pending())
}

func TestConn_AnswersServerPingAndRefusesOthers(t *testing.T) {
	conn, srv := newHarness(t, framing.ContentLength)
	_ = conn

	srv.send(&jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, ID: jsonrpc.NewRequestID("srv-1"), Method: "ping"})
	msg := srv.next(time.Second)
	require.Equal(t, "response", msg.Type())
	require.Equal(t, "srv-1", msg.ID.String())
	require.Nil(t, msg.Error)
	require.JSONEq(t, `{}`, string(msg.Result))

	srv.send(&jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, ID: jsonrpc.NewRequestID(7), Method: "sampling/createMessage"})
	msg = srv.next(time.Second)
	require.Equal(t, "response", msg.Type())
	require.Equal(t, "7", msg.ID.String())
	require.NotNil(t, msg.Error)
	require.Equal(t, jsonrpc.ErrorCodeMethodNotFound, msg.Error.Code)
}

func TestConn_ServerNotificationsAndGarbageAreIgnored(t *testing.T) {
	conn, srv := newHarness(t, framing.ContentLength)

	res := goCall(conn, context.Background(), "resources/list", map[string]any{})
	req := srv.next(time.Second)

	srv.send(map[string]any{"jsonrpc": "2.0", "method": "notifications/message", "params": map[string]any{"level": "info"}})
	_, err := srv.out.Write([]byte("Content-Length: 5\r\n\r\nnope!"))
	require.NoError(t, err)
	srv.reply(jsonrpc.NewRequestID(999), map[string]any{})
	srv.reply(req.ID, map[string]any{"resources": []any{}})

	r := <-res
	require.NoError(t, r.err)
	require.JSONEq(t, `{"resources":[]}`, string(r.resp.Result))
}

func TestConn_TimeoutPurgesPendingAndDropsLateResponse(t *testing.T) {
	conn, srv := newHarness(t, framing.ContentLength)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := conn.Call(ctx, "tools/call", map[string]any{"name": "slow"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, conn.Pending())

	late := srv.next(time.Second)
	srv.reply(late.ID, map[string]any{"content": []any{}})

	// The connection is still usable afterwards.
	res := goCall(conn, context.Background(), "ping", nil)
	req := srv.next(time.Second)
	require.NotEqual(t, late.ID.String(), req.ID.String())
	srv.reply(req.ID, map[string]any{})
	r := <-res
	require.NoError(t, r.err)
}

func TestConn_EndOfStreamFailsPendingCalls(t *testing.T) {
	conn, srv := newHarness(t, framing.ContentLength)

	res := goCall(conn, context.Background(), "tools/list", map[string]any{})
	srv.next(time.Second)
	require.NoError(t, srv.out.Close())

	select {
	case r := <-res:
		require.ErrorIs(t, r.err, ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not failed at end of stream")
	}

	<-conn.Done()
	require.ErrorIs(t, conn.Err(), io.EOF)

	_, err := conn.Call(context.Background(), "tools/list", map[string]any{})
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConn_ConcurrentCallsProduceWholeFrames(t *testing.T) {
	conn, srv := newHarness(t, framing.ContentLength)
	const n = 64

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := conn.Call(context.Background(), "tools/call", map[string]any{"name": "echo", "arguments": map[string]any{"i": i}})
			if err != nil {
				errs <- err
				return
			}
			var got struct{ I int }
			if err := json.Unmarshal(resp.Result, &got); err != nil {
				errs <- err
				return
			}
			if got.I != i {
				errs <- errors.New("response delivered to the wrong caller")
			}
		}(i)
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		msg := srv.next(2 * time.Second)
		require.Equal(t, "request", msg.Type())
		require.False(t, seen[msg.ID.String()], "duplicate id %s", msg.ID)
		seen[msg.ID.String()] = true

		var params struct {
			Arguments struct{ I int } `json:"arguments"`
		}
		require.NoError(t, json.Unmarshal(msg.Params, &params))
		srv.reply(msg.ID, map[string]any{"i": params.Arguments.I})
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestConn_CloseFailsPendingCalls(t *testing.T) {
	conn, srv := newHarness(t, framing.ContentLength)

	res := goCall(conn, context.Background(), "tools/list", map[string]any{})
	srv.next(time.Second)

	require.NoError(t, conn.Close(time.Second))
	r := <-res
	require.ErrorIs(t, r.err, ErrConnectionClosed)
	require.NoError(t, conn.Close(time.Second))
}

func TestConn_WriteHonoursDeadlineWhenServerStopsReading(t *testing.T) {
	inR, inW := io.Pipe() // never read
	outR, outW := io.Pipe()
	conn := NewConn(outR, inW)
	t.Cleanup(func() {
		_ = conn.Close(time.Second)
		_ = inR.Close()
		_ = outW.Close()
	})

	start := time.Now()
	results := make([]chan error, 2)
	for i := range results {
		results[i] = make(chan error, 1)
		go func(ch chan<- error) {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			_, err := conn.Call(ctx, "tools/call", map[string]any{"name": "echo"})
			ch <- err
		}(results[i])
	}

	for _, ch := range results {
		select {
		case err := <-ch:
			require.ErrorIs(t, err, context.DeadlineExceeded)
		case <-time.After(3 * time.Second):
			t.Fatalf("call still blocked after 3s (pending=%d)", conn.Pending())
		}
	}
	require.Less(t, time.Since(start), 2*time.Second)
	require.Zero(t, conn.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, conn.Notify(ctx, "notifications/initialized", nil), context.DeadlineExceeded)
}

func TestConn_ResolvesResponsesWithLooseEnvelopes(t *testing.T) {
	conn, srv := newHarness(t, framing.ContentLength)
	ctx := context.Background()

	writeRaw := func(format string, id *jsonrpc.RequestID) {
		t.Helper()
		rawID, err := json.Marshal(id)
		require.NoError(t, err)
		_, err = srv.out.Write(framing.EncodeContentLength([]byte(fmt.Sprintf(format, rawID))))
		require.NoError(t, err)
	}

	untagged := goCall(conn, ctx, "tools/list", map[string]any{})
	req := srv.next(time.Second)
	writeRaw(`{"id":%s,"result":{"tools":[{"name":"echo"}]}}`, req.ID)

	select {
	case r := <-untagged:
		require.NoError(t, r.err)
		require.JSONEq(t, `{"tools":[{"name":"echo"}]}`, string(r.resp.Result))
	case <-time.After(2 * time.Second):
		t.Fatal("response without a jsonrpc tag was not resolved")
	}

	empty := goCall(conn, ctx, "resources/read", map[string]any{"uri": "file:///readme.txt"})
	req = srv.next(time.Second)
	writeRaw(`{"jsonrpc":"2.0","id":%s}`, req.ID)

	select {
	case r := <-empty:
		require.NoError(t, r.err)
		require.Empty(t, r.resp.Result)
		require.Nil(t, r.resp.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("response without result or error was not resolved")
	}
	require.Zero(t, conn.Pending())
}

func TestConn_LogsServerLogMessages(t *testing.T) {
	var buf lockedBuffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	conn, srv := newHarness(t, framing.NewlineDelimited, WithLogger(log))

	res := goCall(conn, context.Background(), "tools/list", map[string]any{})
	req := srv.next(time.Second)
	srv.send(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notifications/message",
		"params":  map[string]any{"level": "warning", "logger": "disk", "data": "space low"},
	})
	srv.reply(req.ID, map[string]any{"tools": []any{}})
	r := <-res
	require.NoError(t, r.err)

	out := buf.String()
	require.Contains(t, out, `"msg":"server log message"`)
	require.Contains(t, out, `"severity":"warning"`)
	require.Contains(t, out, `"data":"space low"`)
}

func TestConn_SmallReadBufferReassemblesFrames(t *testing.T) {
	conn, srv := newHarness(t, framing.ContentLength, WithReadBufferSize(7))

	res := goCall(conn, context.Background(), "prompts/get", map[string]any{"name": "greeting"})
	req := srv.next(time.Second)
	srv.reply(req.ID, map[string]any{"messages": []any{map[string]any{"role": "user", "content": map[string]any{"type": "text", "text": "héllo"}}}})

	r := <-res
	require.NoError(t, r.err)
	require.JSONEq(t, `{"messages":[{"role":"user","content":{"type":"text","text":"héllo"}}]}`, string(r.resp.Result))
}
