package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/standardbeagle/sccd/internal/config"
)

// Socket file names inside the scc config directory.
const (
	SocketName  = "daemon.socket"
	PIDFileName = "daemon.pid"
)

var (
	// ErrSocketInUse means another daemon answers on the socket.
	ErrSocketInUse = errors.New("socket in use by a running daemon")
	// ErrSocketNotFound means no socket exists at the path.
	ErrSocketNotFound = errors.New("socket not found")
)

// DefaultSocketPath returns ~/.config/scc/daemon.socket.
func DefaultSocketPath() string {
	return filepath.Join(config.ConfigDir(), SocketName)
}

// DefaultPIDPath returns ~/.config/scc/daemon.pid.
func DefaultPIDPath() string {
	return filepath.Join(config.ConfigDir(), PIDFileName)
}

// SocketManager owns the control socket file.
type SocketManager struct {
	path     string
	listener net.Listener
}

// NewSocketManager creates a manager for the socket at path.
func NewSocketManager(path string) *SocketManager {
	if path == "" {
		path = DefaultSocketPath()
	}
	return &SocketManager{path: path}
}

// Path returns the socket path.
func (sm *SocketManager) Path() string {
	return sm.path
}

// Listen binds the socket, replacing a stale file left by a dead daemon.
// The socket is only accessible by the owner.
func (sm *SocketManager) Listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(sm.path), 0700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	if _, err := os.Stat(sm.path); err == nil {
		if IsRunning(sm.path) {
			return nil, fmt.Errorf("%w: %s", ErrSocketInUse, sm.path)
		}
		if err := os.Remove(sm.path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", sm.path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(sm.path, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	sm.listener = ln
	return ln, nil
}

// Close closes the listener and removes the socket file.
func (sm *SocketManager) Close() error {
	var errs []error
	if sm.listener != nil {
		if err := sm.listener.Close(); err != nil && !isClosedError(err) {
			errs = append(errs, err)
		}
		sm.listener = nil
	}
	if err := os.Remove(sm.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Connect dials the daemon socket at path.
func Connect(path string, timeout time.Duration) (net.Conn, error) {
	if path == "" {
		path = DefaultSocketPath()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSocketNotFound, path)
	}
	return net.DialTimeout("unix", path, timeout)
}

// IsRunning reports whether a daemon accepts connections on path.
func IsRunning(path string) bool {
	conn, err := Connect(path, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
