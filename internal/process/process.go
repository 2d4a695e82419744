// Package process owns the MCP server child process and its three pipes.
package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultGracePeriod is how long Terminate waits before killing the child.
	DefaultGracePeriod = 5 * time.Second

	// defaultExitDrain bounds how long stdout stays readable after the child
	// exits. A grandchild holding the pipe open must not keep readers alive.
	defaultExitDrain = 250 * time.Millisecond
)

var (
	// ErrEmptyCommand indicates a Command without a program.
	ErrEmptyCommand = errors.New("empty command")
	// ErrTransportClosed classifies writes that fail because the child (or its
	// stdin) is gone.
	ErrTransportClosed = errors.New("transport closed")
	// ErrGraceExpired reports that the child had to be killed after the grace
	// period elapsed. Its resources are reclaimed regardless.
	ErrGraceExpired = errors.New("process did not exit within grace period")
)

// Command is a program path followed by its arguments.
type Command []string

// NewCommand copies program and args into a Command.
func NewCommand(program string, args ...string) Command {
	c := make(Command, 0, len(args)+1)
	c = append(c, program)
	return append(c, args...)
}

// Validate reports whether the command names a program.
func (c Command) Validate() error {
	if len(c) == 0 || strings.TrimSpace(c[0]) == "" {
		return ErrEmptyCommand
	}
	return nil
}

// String joins the command with spaces for display.
func (c Command) String() string { return strings.Join(c, " ") }

// Option customizes Start.
type Option func(*Process)

// WithLogger sets the logger receiving stderr lines and lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(p *Process) {
		if l != nil {
			p.log = l
		}
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env []string) Option {
	return func(p *Process) {
		p.env = append(p.env, env...)
	}
}

// WithDir sets the child's working directory.
func WithDir(dir string) Option {
	return func(p *Process) { p.dir = dir }
}

// Process is a running child with stdin (write only), stdout (read only) and
// stderr (drained into the debug log) pipes.
type Process struct {
	command Command
	cmd     *exec.Cmd
	log     *slog.Logger
	env     []string
	dir     string

	stdin  *os.File
	stdout *os.File
	stderr *os.File

	stdinOnce   sync.Once
	releaseOnce sync.Once

	exited  chan struct{}
	waitErr error
}

// Start spawns command with fresh OS pipes. The command slice is copied, so
// later mutation by the caller has no effect.
func Start(command Command, opts ...Option) (*Process, error) {
	if err := command.Validate(); err != nil {
		return nil, err
	}

	p := &Process{
		command: append(Command(nil), command...),
		log:     slog.New(slog.DiscardHandler),
		exited:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	cmd := exec.Command(p.command[0], p.command[1:]...)
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}
	cmd.Dir = p.dir
	isolate(cmd)

	var toClose []*os.File
	closeAll := func() {
		for _, f := range toClose {
			_ = f.Close()
		}
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	toClose = append(toClose, stdinR, stdinW)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	toClose = append(toClose, stdoutR, stdoutW)

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	toClose = append(toClose, stderrR, stderrW)

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	// The child holds its own copies now.
	_ = stdinR.Close()
	_ = stdoutW.Close()
	_ = stderrW.Close()

	p.cmd = cmd
	p.stdin = stdinW
	p.stdout = stdoutR
	p.stderr = stderrR

	p.log.Debug("process started", slog.String("command", p.command.String()), slog.Int("pid", cmd.Process.Pid))

	go p.drainStderr()
	go p.wait()

	return p, nil
}

func (p *Process) wait() {
	p.waitErr = p.cmd.Wait()
	close(p.exited)

	p.log.Debug("process exited", slog.Int("pid", p.cmd.Process.Pid), slog.Any("err", p.waitErr))

	// Pipes opened by os.Pipe are pollable, so a deadline lets readers finish
	// what is already buffered and then fail. Platforms without deadline
	// support fall back to EOF or Terminate closing the pipes.
	deadline := time.Now().Add(defaultExitDrain)
	_ = p.stdout.SetReadDeadline(deadline)
	_ = p.stderr.SetReadDeadline(deadline)
}

func (p *Process) drainStderr() {
	sc := bufio.NewScanner(p.stderr)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		p.log.Debug("server stderr", slog.String("line", sc.Text()))
	}
}

// Command returns a copy of the command the child was started with.
func (p *Process) Command() Command { return append(Command(nil), p.command...) }

// Pid returns the child's process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Exited is closed once the child has exited and been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// ExitErr returns the result of waiting on the child. It is only meaningful
// after Exited is closed.
func (p *Process) ExitErr() error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
		return nil
	}
}

// Stdout returns the read side of the child's stdout.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Stdin returns a writer for the child's stdin. Every write failure is
// reported as ErrTransportClosed.
func (p *Process) Stdin() io.Writer { return stdinWriter{p} }

type stdinWriter struct{ p *Process }

func (w stdinWriter) Write(b []byte) (int, error) {
	select {
	case <-w.p.exited:
		return 0, fmt.Errorf("%w: process exited", ErrTransportClosed)
	default:
	}
	n, err := w.p.stdin.Write(b)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrTransportClosed, err)
	}
	return n, nil
}

// Terminate closes stdin, asks the child to stop and waits up to grace for it
// to exit. If the grace period elapses the child is killed and the returned
// error wraps ErrGraceExpired. Pipes are always released. Terminate is safe to
// call more than once.
func (p *Process) Terminate(grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	defer p.release()

	p.closeStdin()

	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := signalTerminate(p.cmd.Process); err != nil {
		p.log.Debug("terminate signal failed", slog.Int("pid", p.Pid()), slog.String("err", err.Error()))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.exited:
		return nil
	case <-timer.C:
	}

	p.log.Warn("process ignored termination, killing", slog.Int("pid", p.Pid()), slog.Duration("grace", grace))
	if err := forceKill(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.Debug("kill failed", slog.Int("pid", p.Pid()), slog.String("err", err.Error()))
	}
	<-p.exited
	return fmt.Errorf("%w (%s)", ErrGraceExpired, grace)
}

func (p *Process) closeStdin() {
	p.stdinOnce.Do(func() { _ = p.stdin.Close() })
}

func (p *Process) release() {
	p.releaseOnce.Do(func() {
		p.closeStdin()
		_ = p.stdout.Close()
		_ = p.stderr.Close()
	})
}
