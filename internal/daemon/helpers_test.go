//go:build unix

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/standardbeagle/sccd/internal/action"
	"github.com/standardbeagle/sccd/internal/config"
	"github.com/standardbeagle/sccd/internal/source"
)

// shortTempDir returns a directory short enough for unix socket paths.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "scc")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func testConfig(t *testing.T) Config {
	return Config{
		SocketPath:       filepath.Join(shortTempDir(t), "d.sock"),
		UserConfig:       config.DefaultConfig(),
		TickInterval:     time.Millisecond,
		RestartDelay:     20 * time.Millisecond,
		WriteTimeout:     2 * time.Second,
		DisplayAvailable: func() bool { return false },
	}
}

func startDaemon(t *testing.T, mutate func(*Config)) *Daemon {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}
	d := New(cfg)
	if err := d.Start(); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return d
}

func dial(t *testing.T, d *Daemon) *Client {
	t.Helper()
	c, err := Dial(d.SocketPath(), 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func expectReply(t *testing.T, c *Client, line, want string) {
	t.Helper()
	got, err := c.Send(line)
	if err != nil {
		t.Fatalf("Send(%q): %v", line, err)
	}
	if got != want {
		t.Fatalf("Send(%q) = %q, want %q", line, got, want)
	}
}

// expectLine reads the next unsolicited line.
func expectLine(t *testing.T, c *Client, want string) {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})
	got, err := c.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v (want %q)", err, want)
	}
	if got != want {
		t.Fatalf("ReadLine = %q, want %q", got, want)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// withState runs fn under the daemon lock.
func withState(d *Daemon, fn func(st *State)) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	fn(&d.state)
}

func slot(d *Daemon, src source.Source) *action.Node {
	var n *action.Node
	withState(d, func(st *State) { n = st.mapper.Profile().Slot(src) })
	return n
}

func sessionCount(d *Daemon) int {
	n := 0
	withState(d, func(st *State) { n = len(st.sessions) })
	return n
}

// countingAction counts how often the engine fired it.
type countingAction struct {
	name     string
	presses  atomic.Int32
	releases atomic.Int32
	wholes   atomic.Int32
	onPress  func(m action.Mapper)
}

func (a *countingAction) ButtonPress(m action.Mapper) {
	a.presses.Add(1)
	if a.onPress != nil {
		a.onPress(m)
	}
}
func (a *countingAction) ButtonRelease(action.Mapper)                   { a.releases.Add(1) }
func (a *countingAction) Trigger(action.Mapper, int, int)               {}
func (a *countingAction) Whole(action.Mapper, int, int, source.Source) { a.wholes.Add(1) }
func (a *countingAction) Describe() string                              { return a.name }

func bind(d *Daemon, src source.Source, a action.Action) {
	withState(d, func(st *State) { st.mapper.Profile().SetSlot(src, action.Base(a)) })
}

// fakeController records LED changes.
type fakeController struct {
	id string

	mu    sync.Mutex
	level int
	off   bool
}

func (c *fakeController) ID() string { return c.id }

func (c *fakeController) LEDLevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

func (c *fakeController) SetLEDLevel(level int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
	return nil
}

func (c *fakeController) isOff() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.off
}

func (c *fakeController) TurnOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.off = true
	return nil
}

// writeExecutable writes a shell script companion into dir.
func writeExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+strings.TrimSpace(body)+"\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
