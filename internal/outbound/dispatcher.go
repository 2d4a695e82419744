// Package outbound correlates client-initiated JSON-RPC requests with the
// responses that eventually come back over a shared connection.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ggoodman/mcp-inspector-go/internal/jsonrpc"
)

// Transport writes a request to the peer. It must be safe for concurrent use.
// The dispatcher always registers the pending entry before calling
// SendRequest, so a response can never arrive ahead of its registration.
type Transport interface {
	SendRequest(ctx context.Context, req *jsonrpc.Request) error
}

var (
	// ErrDispatcherClosed indicates the dispatcher is closed.
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrDuplicateID indicates an id is already pending.
	ErrDuplicateID = errors.New("request id already pending")
)

// Waiter is the caller's handle on one pending request. It is signalled at
// most once, either with a response or with the dispatcher's close error.
type Waiter struct {
	id     *jsonrpc.RequestID
	key    string
	respCh chan *jsonrpc.Response
	errCh  chan error
}

// ID returns the request id the waiter is registered under.
func (w *Waiter) ID() *jsonrpc.RequestID { return w.id }

// Dispatcher is the correlation table. A single mutex guards both the id
// counter and the pending map; no I/O ever happens while it is held.
type Dispatcher struct {
	t Transport

	mu       sync.Mutex
	pending  map[string]*Waiter // id.String() -> waiter
	nextID   uint64
	closed   bool
	closeErr error
}

// New constructs a Dispatcher using the provided transport.
func New(t Transport) *Dispatcher {
	return &Dispatcher{t: t, pending: make(map[string]*Waiter)}
}

// NextID reserves the next request id. Ids start at 1 and are never reused.
func (d *Dispatcher) NextID() *jsonrpc.RequestID {
	d.mu.Lock()
	d.nextID++
	n := d.nextID
	d.mu.Unlock()
	return jsonrpc.NewRequestID(n)
}

// Register inserts a pending entry for id and returns its waiter.
func (d *Dispatcher) Register(id *jsonrpc.RequestID) (*Waiter, error) {
	w := &Waiter{
		id:     id,
		key:    id.String(),
		respCh: make(chan *jsonrpc.Response, 1),
		errCh:  make(chan error, 1),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, d.closeErrLocked()
	}
	if _, exists := d.pending[w.key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, w.key)
	}
	d.pending[w.key] = w
	return w, nil
}

// Resolve delivers an incoming response to its waiter and reports whether one
// was found. Responses for unknown ids (for example requests that already
// timed out) are dropped.
func (d *Dispatcher) Resolve(resp *jsonrpc.Response) bool {
	if resp == nil || resp.ID.IsNil() {
		return false
	}
	key := resp.ID.String()
	d.mu.Lock()
	w, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		w.respCh <- resp
	}
	return ok
}

// Await blocks until w is resolved or ctx is done. When ctx ends first the
// entry is purged so a late response is dropped instead of leaking.
func (d *Dispatcher) Await(ctx context.Context, w *Waiter) (*jsonrpc.Response, error) {
	select {
	case resp := <-w.respCh:
		return resp, nil
	case err := <-w.errCh:
		return nil, err
	case <-ctx.Done():
		if d.forget(w) {
			return nil, ctx.Err()
		}
		// Someone claimed the entry concurrently; its signal is imminent.
		select {
		case resp := <-w.respCh:
			return resp, nil
		case err := <-w.errCh:
			return nil, err
		}
	}
}

// Forget removes w from the table without signalling it. It is used when the
// request could not be written.
func (d *Dispatcher) Forget(w *Waiter) { d.forget(w) }

func (d *Dispatcher) forget(w *Waiter) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.pending[w.key]; ok && cur == w {
		delete(d.pending, w.key)
		return true
	}
	return false
}

// Call sends a JSON-RPC request and waits for a response or context cancellation.
func (d *Dispatcher) Call(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	id := d.NextID()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	w, err := d.Register(id)
	if err != nil {
		return nil, err
	}

	if err := d.t.SendRequest(ctx, req); err != nil {
		d.forget(w)
		return nil, err
	}

	return d.Await(ctx, w)
}

// Len reports the number of pending requests.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close fails all pending calls with the provided error and prevents new ones.
func (d *Dispatcher) Close(err error) {
	if err == nil {
		err = ErrDispatcherClosed
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.closeErr = err
	waiters := make([]*Waiter, 0, len(d.pending))
	for key, w := range d.pending {
		delete(d.pending, key)
		waiters = append(waiters, w)
	}
	d.mu.Unlock()

	for _, w := range waiters {
		w.errCh <- err
	}
}

func (d *Dispatcher) closeErrLocked() error {
	if d.closeErr != nil {
		return d.closeErr
	}
	return ErrDispatcherClosed
}
