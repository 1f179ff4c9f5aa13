package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrDaemonRunning is returned when another daemon holds the pid file lock.
var ErrDaemonRunning = errors.New("daemon already running")

// PIDFile is an exclusively locked file holding the daemon pid.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// NewPIDFile creates a handle for the pid file at path.
func NewPIDFile(path string) *PIDFile {
	if path == "" {
		path = DefaultPIDPath()
	}
	return &PIDFile{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the pid file path.
func (p *PIDFile) Path() string { return p.path }

// Acquire takes the lock and writes the current pid. It fails with
// ErrDaemonRunning if another process holds the lock.
func (p *PIDFile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	locked, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock pid file: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrDaemonRunning, p.path)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		_ = p.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the pid file and drops the lock.
func (p *PIDFile) Release() error {
	if !p.lock.Locked() {
		return nil
	}
	var errs []error
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := p.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ReadPID reads the pid stored at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	return pid, nil
}
