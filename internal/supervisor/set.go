package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
)

// Set holds named supervisors, at most one per name.
type Set struct {
	opts Options

	mu    sync.Mutex
	items map[string]*Supervisor
}

// NewSet creates an empty set whose supervisors share opts.
func NewSet(opts Options) *Set {
	return &Set{opts: opts, items: make(map[string]*Supervisor)}
}

// Start supervises spec under name. If name is already supervised the
// existing supervisor is returned and started is false.
func (s *Set) Start(name string, spec Spec) (sup *Supervisor, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[name]; ok {
		return existing, false
	}
	sup = New(name, spec, s.opts)
	s.items[name] = sup
	sup.Start()
	return sup, true
}

// Stop kills and forgets the named supervisor. It reports whether one
// existed.
func (s *Set) Stop(name string) bool {
	s.mu.Lock()
	sup, ok := s.items[name]
	delete(s.items, name)
	s.mu.Unlock()

	if ok {
		sup.Kill()
	}
	return ok
}

// KillAll kills every supervisor and empties the set. The killed
// supervisors are returned so callers can wait on them.
func (s *Set) KillAll() []*Supervisor {
	s.mu.Lock()
	killed := make([]*Supervisor, 0, len(s.items))
	for name, sup := range s.items {
		killed = append(killed, sup)
		delete(s.items, name)
	}
	s.mu.Unlock()

	for _, sup := range killed {
		sup.Kill()
	}
	return killed
}

// Has reports whether name is supervised.
func (s *Set) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[name]
	return ok
}

// Get returns the named supervisor, or nil.
func (s *Set) Get(name string) *Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[name]
}

// Names returns the supervised names, sorted.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.items))
	for name := range s.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindBinary looks for an executable named name in dirs, in order, and
// then in $PATH.
func FindBinary(name string, dirs ...string) (string, error) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !isExecutable(uint32(info.Mode().Perm())) {
			continue
		}
		return path, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, name)
	}
	return path, nil
}
