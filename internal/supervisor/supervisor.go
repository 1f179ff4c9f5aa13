// Package supervisor keeps companion processes running.
//
// A Supervisor owns one goroutine per process. It spawns the binary in its
// own process group, blocks until it exits and respawns it after a fixed
// delay, until Kill is called. Kill and spawn share a mutex, so once Kill
// returns no new process is started.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRestartDelay is the pause between an exit and the next spawn.
const DefaultRestartDelay = 5 * time.Second

var (
	// ErrStopped is returned by spawn after Kill.
	ErrStopped = errors.New("supervisor stopped")
	// ErrBinaryNotFound is returned when a companion binary cannot be located.
	ErrBinaryNotFound = errors.New("binary not found")
)

// Spec describes the process to supervise.
type Spec struct {
	Path string
	Args []string
	// Env replaces the inherited environment when non-empty.
	Env    []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	// RestartDelay defaults to DefaultRestartDelay.
	RestartDelay time.Duration
}

// Options carries the collaborators shared by supervisors.
type Options struct {
	Logger *slog.Logger
	// OnRestart is called every time a process is spawned again after
	// exiting.
	OnRestart func(name string)
}

// killProcessGroup is replaced in tests.
var killProcessGroup = killGroup

// Supervisor restarts a single process until killed.
type Supervisor struct {
	name   string
	spec   Spec
	logger *slog.Logger
	hook   func(string)

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
	stop    chan struct{}

	startOnce sync.Once
	done      chan struct{}
	spawns    atomic.Int64
}

// New creates a supervisor. Call Start to begin spawning.
func New(name string, spec Spec, opts Options) *Supervisor {
	if spec.RestartDelay <= 0 {
		spec.RestartDelay = DefaultRestartDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{
		name:   name,
		spec:   spec,
		logger: logger.With("component", "supervisor", "name", name),
		hook:   opts.OnRestart,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Name returns the supervisor name.
func (s *Supervisor) Name() string { return s.name }

// Start launches the supervising goroutine. Calling it again is a no-op.
func (s *Supervisor) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *Supervisor) run() {
	defer close(s.done)

	for {
		cmd, err := s.spawn()
		switch {
		case errors.Is(err, ErrStopped):
			return
		case err != nil:
			s.logger.Error("failed to start process", "path", s.spec.Path, "error", err)
		default:
			pid := cmd.Process.Pid
			s.logger.Debug("process started", "pid", pid)

			// The exited child stays unreaped until cmd is cleared, so Kill
			// never signals a pid the system may have handed out again.
			if err := awaitExit(pid); err != nil {
				s.logger.Debug("cannot wait without reaping", "pid", pid, "error", err)
			}
			s.mu.Lock()
			s.cmd = nil
			stopped := s.stopped
			s.mu.Unlock()
			waitErr := cmd.Wait()

			if stopped {
				return
			}
			s.logger.Warn("process exited; restarting",
				"pid", pid, "exit_code", exitCode(waitErr), "delay", s.spec.RestartDelay)
		}

		select {
		case <-s.stop:
			return
		case <-time.After(s.spec.RestartDelay):
		}
	}
}

// spawn starts the process unless the supervisor was killed. The stopped
// flag is checked under the same lock Kill takes.
func (s *Supervisor) spawn() (*exec.Cmd, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}

	cmd := exec.Command(s.spec.Path, s.spec.Args...)
	cmd.Dir = s.spec.Dir
	if len(s.spec.Env) > 0 {
		cmd.Env = s.spec.Env
	}
	cmd.Stdout = s.spec.Stdout
	cmd.Stderr = s.spec.Stderr
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.spec.Path, err)
	}
	s.cmd = cmd
	if s.spawns.Add(1) > 1 && s.hook != nil {
		s.hook(s.name)
	}
	return cmd, nil
}

// Kill stops supervision permanently and kills the running process group.
// It is safe to call more than once.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)

	if s.cmd != nil && s.cmd.Process != nil {
		pid := s.cmd.Process.Pid
		if err := killProcessGroup(pid); err != nil && !isNoSuchProcess(err) {
			s.logger.Warn("failed to kill process", "pid", pid, "error", err)
		}
	}
}

// Stopped reports whether Kill was called.
func (s *Supervisor) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Done is closed when the supervising goroutine returns.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Wait blocks until the supervising goroutine returns or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawns returns how many times the process was started.
func (s *Supervisor) Spawns() int64 { return s.spawns.Load() }

// Running reports whether a process is currently alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// PID returns the pid of the running process, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
