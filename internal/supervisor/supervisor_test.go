package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, s *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx), "supervisor did not stop")
}

func TestSupervisor_RespawnsAfterExit(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "runs")
	var restarts atomic.Int64

	s := New("quick", Spec{
		Path:         "/bin/sh",
		Args:         []string{"-c", "echo run >> " + marker},
		RestartDelay: 20 * time.Millisecond,
	}, Options{OnRestart: func(string) { restarts.Add(1) }})
	s.Start()

	require.Eventually(t, func() bool { return s.Spawns() >= 3 }, 5*time.Second, 10*time.Millisecond)
	s.Kill()
	waitDone(t, s)

	spawns := s.Spawns()
	assert.Equal(t, spawns-1, restarts.Load(), "one restart per exit")

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	runs := int64(strings.Count(string(data), "run\n"))
	// The last spawn may be killed before it writes.
	assert.LessOrEqual(t, runs, spawns)
	assert.GreaterOrEqual(t, runs, spawns-1)
}

func TestSupervisor_KillStopsRespawn(t *testing.T) {
	s := New("sleeper", Spec{
		Path:         "/bin/sh",
		Args:         []string{"-c", "sleep 30"},
		RestartDelay: 10 * time.Millisecond,
	}, Options{})
	s.Start()

	require.Eventually(t, s.Running, 5*time.Second, 10*time.Millisecond)
	assert.NotZero(t, s.PID())

	s.Kill()
	waitDone(t, s)

	assert.True(t, s.Stopped())
	assert.False(t, s.Running())
	assert.Zero(t, s.PID())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), s.Spawns(), "no spawn after kill")
}

func TestSupervisor_KillBeforeStart(t *testing.T) {
	s := New("never", Spec{Path: "/bin/sh", Args: []string{"-c", "exit 0"}}, Options{})
	s.Kill()
	s.Kill()
	s.Start()
	waitDone(t, s)
	assert.Zero(t, s.Spawns())
}

func TestSupervisor_MissingBinaryRetries(t *testing.T) {
	s := New("missing", Spec{
		Path:         filepath.Join(t.TempDir(), "does-not-exist"),
		RestartDelay: 10 * time.Millisecond,
	}, Options{})
	s.Start()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-s.Done():
		t.Fatal("supervisor gave up on a missing binary")
	default:
	}
	assert.Zero(t, s.Spawns())

	s.Kill()
	waitDone(t, s)
}

func TestSupervisor_DefaultDelay(t *testing.T) {
	s := New("x", Spec{Path: "/bin/true"}, Options{})
	assert.Equal(t, DefaultRestartDelay, s.spec.RestartDelay)
	assert.Equal(t, "x", s.Name())
}
