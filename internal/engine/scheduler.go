package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/standardbeagle/sccd/internal/action"
)

type task struct {
	due time.Time
	seq uint64
	fn  func(action.Mapper)
}

// Scheduler queues callbacks for the engine loop. Tasks run in due order;
// ties run in scheduling order.
type Scheduler struct {
	mu    sync.Mutex
	now   func() time.Time
	tasks []task
	seq   uint64
}

// NewScheduler creates a scheduler using the wall clock.
func NewScheduler() *Scheduler {
	return &Scheduler{now: time.Now}
}

// Schedule queues fn to run no earlier than delay from now.
func (s *Scheduler) Schedule(delay time.Duration, fn func(action.Mapper)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.tasks = append(s.tasks, task{due: s.now().Add(delay), seq: s.seq, fn: fn})
	sort.SliceStable(s.tasks, func(i, j int) bool {
		if s.tasks[i].due.Equal(s.tasks[j].due) {
			return s.tasks[i].seq < s.tasks[j].seq
		}
		return s.tasks[i].due.Before(s.tasks[j].due)
	})
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunDue runs every task due at or before now, passing m to each. Tasks
// scheduled by a running task are picked up on a later call.
func (s *Scheduler) RunDue(now time.Time, m action.Mapper) int {
	s.mu.Lock()
	n := 0
	for n < len(s.tasks) && !s.tasks[n].due.After(now) {
		n++
	}
	due := make([]task, n)
	copy(due, s.tasks[:n])
	s.tasks = s.tasks[n:]
	s.mu.Unlock()

	for _, t := range due {
		t.fn(m)
	}
	return n
}
