// Package supervisor keeps an MCP server session alive. It starts the session
// with exponential backoff, replaces it when the child exits or a watched path
// changes, and serves the inspector API from whichever session is current.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/mcp-inspector-go/client"
	"github.com/ggoodman/mcp-inspector-go/internal/process"
	"github.com/ggoodman/mcp-inspector-go/mcp"
)

const (
	// DefaultDebounce is how long watched paths must stay quiet before a
	// restart.
	DefaultDebounce = 250 * time.Millisecond
	// DefaultInitialInterval is the first delay between start attempts.
	DefaultInitialInterval = 250 * time.Millisecond
	// DefaultMaxInterval caps the delay between start attempts.
	DefaultMaxInterval = 30 * time.Second
)

const (
	reasonExit    = "exit"
	reasonWatch   = "watch"
	reasonRequest = "request"
)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger for supervisor events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSessionOptions forwards options to every session the supervisor builds.
func WithSessionOptions(opts ...client.Option) Option {
	return func(s *Supervisor) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// WithRestartOnExit replaces the session whenever its child exits.
func WithRestartOnExit(enabled bool) Option {
	return func(s *Supervisor) { s.restartOnExit = enabled }
}

// WithWatch restarts the session when any of paths is written, created,
// removed or renamed.
func WithWatch(paths ...string) Option {
	return func(s *Supervisor) { s.watchPaths = append(s.watchPaths, paths...) }
}

// WithDebounce sets how long the watcher waits for changes to settle.
func WithDebounce(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithBackoff tunes the retry schedule for starting a session. A zero
// maxElapsed retries until the context ends.
func WithBackoff(initial, maxInterval, maxElapsed time.Duration) Option {
	return func(s *Supervisor) {
		if initial > 0 {
			s.initialInterval = initial
		}
		if maxInterval > 0 {
			s.maxInterval = maxInterval
		}
		s.maxElapsed = maxElapsed
	}
}

// Supervisor owns the lifecycle of successive sessions for one command. It
// implements inspector.API; calls made while no session is up behave like
// calls on a dead server.
type Supervisor struct {
	command     process.Command
	log         *slog.Logger
	sessionOpts []client.Option

	restartOnExit   bool
	watchPaths      []string
	debounce        time.Duration
	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsed      time.Duration

	requests chan string

	mu       sync.RWMutex
	cur      *client.Session
	starts   int
	attempts int
}

// New prepares a supervisor for command. Nothing is spawned until Run.
func New(command process.Command, opts ...Option) *Supervisor {
	s := &Supervisor{
		command:         append(process.Command(nil), command...),
		log:             slog.New(slog.DiscardHandler),
		debounce:        DefaultDebounce,
		initialInterval: DefaultInitialInterval,
		maxInterval:     DefaultMaxInterval,
		requests:        make(chan string, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the first session and keeps one running until ctx ends, at
// which point the current session is stopped and Run returns nil. It returns
// an error when the command is invalid, a watch cannot be set up, or starting
// gives up after the configured elapsed time.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.command.Validate(); err != nil {
		return err
	}

	if len(s.watchPaths) > 0 {
		w, err := s.newWatcher()
		if err != nil {
			return err
		}
		defer func() {
			_ = w.Close()
		}()
		go s.runWatcher(ctx, w)
	}

	defer s.stopCurrent()

	if err := s.startWithBackoff(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	exited := s.current().Done()
	for {
		var reason string
		select {
		case <-ctx.Done():
			return nil
		case <-exited:
			exited = nil
			if !s.restartOnExit {
				s.log.WarnContext(ctx, "server exited; restart disabled", slog.String("command", s.command.String()))
				continue
			}
			reason = reasonExit
		case reason = <-s.requests:
		}

		s.log.InfoContext(ctx, "restarting server", slog.String("reason", reason))
		s.stopCurrent()
		if err := s.startWithBackoff(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		exited = s.current().Done()
	}
}

// Restart asks Run to replace the current session. Requests made while one is
// already pending are coalesced.
func (s *Supervisor) Restart() {
	s.request(reasonRequest)
}

func (s *Supervisor) request(reason string) {
	select {
	case s.requests <- reason:
	default:
	}
}

// Starts reports how many sessions completed their handshake.
func (s *Supervisor) Starts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.starts
}

// Attempts reports how many sessions were spawned, successful or not.
func (s *Supervisor) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// State reports the current session's state, or disconnected when none is up.
func (s *Supervisor) State() client.State {
	if sess := s.current(); sess != nil {
		return sess.State()
	}
	return client.StateDisconnected
}

func (s *Supervisor) startWithBackoff(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialInterval
	b.MaxInterval = s.maxInterval
	b.MaxElapsedTime = s.maxElapsed
	b.Reset()

	var lastAttemptErr error
	err := backoff.RetryNotify(
		func() error { return s.startOnce(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			lastAttemptErr = err
			s.log.WarnContext(ctx, "server start failed; retrying",
				slog.String("err", err.Error()),
				slog.Duration("backoff", d))
		},
	)
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded) && lastAttemptErr != nil:
		return errors.Join(lastAttemptErr, err)
	case err != nil:
		return fmt.Errorf("failed to start server: %w", err)
	default:
		return nil
	}
}

func (s *Supervisor) startOnce(ctx context.Context) error {
	sess := client.New(s.command, append([]client.Option{client.WithLogger(s.log)}, s.sessionOpts...)...)

	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		_ = sess.Stop()
		if errors.Is(err, process.ErrEmptyCommand) {
			return backoff.Permanent(err)
		}
		return err
	}

	s.mu.Lock()
	s.cur = sess
	s.starts++
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) stopCurrent() {
	s.mu.Lock()
	sess := s.cur
	s.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Stop(); err != nil {
		s.log.Debug("failed to stop server cleanly", slog.String("err", err.Error()))
	}
}

func (s *Supervisor) current() *client.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Supervisor) newWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, p := range s.watchPaths {
		if err := w.Add(p); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", p, err)
		}
	}
	return w, nil
}

// runWatcher turns bursts of file events into a single restart request once
// the debounce window passes without further changes.
func (s *Supervisor) runWatcher(ctx context.Context, w *fsnotify.Watcher) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			s.log.DebugContext(ctx, "watched path changed", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.WarnContext(ctx, "watcher error", slog.String("err", err.Error()))
		case <-fire:
			fire = nil
			// Editors that save by rename drop the original watch.
			for _, p := range s.watchPaths {
				_ = w.Add(p)
			}
			s.request(reasonWatch)
		}
	}
}

// Info returns the current session's server identity, or only the command
// while no session is running.
func (s *Supervisor) Info() client.Info {
	if sess := s.current(); sess != nil {
		return sess.Info()
	}
	return client.Info{Command: append(process.Command(nil), s.command...)}
}

// ListTools lists the current session's tools, or none without a session.
func (s *Supervisor) ListTools(ctx context.Context) []mcp.Descriptor {
	if sess := s.current(); sess != nil {
		return sess.ListTools(ctx)
	}
	return []mcp.Descriptor{}
}

// ListResources lists the current session's resources.
func (s *Supervisor) ListResources(ctx context.Context) []mcp.Descriptor {
	if sess := s.current(); sess != nil {
		return sess.ListResources(ctx)
	}
	return []mcp.Descriptor{}
}

// ListResourceTemplates lists the current session's resource templates.
func (s *Supervisor) ListResourceTemplates(ctx context.Context) []mcp.Descriptor {
	if sess := s.current(); sess != nil {
		return sess.ListResourceTemplates(ctx)
	}
	return []mcp.Descriptor{}
}

// ListPrompts lists the current session's prompts.
func (s *Supervisor) ListPrompts(ctx context.Context) []mcp.Descriptor {
	if sess := s.current(); sess != nil {
		return sess.ListPrompts(ctx)
	}
	return []mcp.Descriptor{}
}

// CallTool invokes a tool on the current session. Without one the result is
// StatusNoResponse wrapping client.ErrNotStarted.
func (s *Supervisor) CallTool(ctx context.Context, name string, args map[string]any) client.Result {
	if sess := s.current(); sess != nil {
		return sess.CallTool(ctx, name, args)
	}
	return notStarted()
}

// ReadResource reads a resource through the current session.
func (s *Supervisor) ReadResource(ctx context.Context, uri string) client.Result {
	if sess := s.current(); sess != nil {
		return sess.ReadResource(ctx, uri)
	}
	return notStarted()
}

// GetPrompt renders a prompt through the current session.
func (s *Supervisor) GetPrompt(ctx context.Context, name string, args map[string]any) client.Result {
	if sess := s.current(); sess != nil {
		return sess.GetPrompt(ctx, name, args)
	}
	return notStarted()
}

func notStarted() client.Result {
	return client.Result{Status: client.StatusNoResponse, Err: client.ErrNotStarted}
}
