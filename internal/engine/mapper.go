package engine

import (
	"fmt"
	"time"

	"github.com/standardbeagle/sccd/internal/action"
	"github.com/standardbeagle/sccd/internal/source"
)

// InputKind is the kind of a controller input event.
type InputKind uint8

const (
	InputPress InputKind = iota
	InputRelease
	InputTrigger
	InputWhole
)

// InputEvent is a decoded controller input addressed to one source.
// Position fields are interpreted according to Kind: Trigger uses X as the
// new position and Y as the previous one; Whole uses X and Y as axes.
type InputEvent struct {
	Kind   InputKind
	Source source.Source
	X, Y   int
}

// Mapper binds a profile to a controller and runs scheduled engine work.
type Mapper struct {
	profile    *Profile
	controller Controller
	scheduler  *Scheduler
}

// NewMapper creates a mapper with an empty profile.
func NewMapper() *Mapper {
	return &Mapper{
		profile:   NewProfile(),
		scheduler: NewScheduler(),
	}
}

// Profile returns the active profile.
func (m *Mapper) Profile() *Profile {
	return m.profile
}

// SetProfile replaces the active profile.
func (m *Mapper) SetProfile(p *Profile) {
	m.profile = p
}

// Controller returns the attached controller, or nil.
func (m *Mapper) Controller() Controller {
	return m.controller
}

// SetController attaches c; nil detaches.
func (m *Mapper) SetController(c Controller) {
	m.controller = c
}

// Scheduler returns the engine scheduler.
func (m *Mapper) Scheduler() *Scheduler {
	return m.scheduler
}

// Schedule implements action.Mapper.
func (m *Mapper) Schedule(delay time.Duration, fn func(action.Mapper)) {
	m.scheduler.Schedule(delay, fn)
}

// RunDue runs scheduled tasks that are due.
func (m *Mapper) RunDue(now time.Time) int {
	return m.scheduler.RunDue(now, m)
}

// Apply replaces the chain bound to src with fn's result. If fn fails the
// slot is left untouched, as it is for unknown sources. A pad is re-centered through its new chain so a
// wrapper does not start from a stale touch position.
func (m *Mapper) Apply(src source.Source, fn func(*action.Node) (*action.Node, error)) error {
	if !src.Valid() {
		return fmt.Errorf("%w: %s", source.ErrUnknownSource, src)
	}
	next, err := fn(m.profile.Slot(src))
	if err != nil {
		return err
	}
	m.profile.SetSlot(src, next)
	if src.Kind() == source.KindPad {
		next.Whole(m, 0, 0, src)
	}
	return nil
}

// Dispatch fires ev through the chain bound to its source.
func (m *Mapper) Dispatch(ev InputEvent) {
	n := m.profile.Slot(ev.Source)
	if n == nil {
		return
	}
	switch ev.Kind {
	case InputPress:
		n.ButtonPress(m)
	case InputRelease:
		n.ButtonRelease(m)
	case InputTrigger:
		n.Trigger(m, ev.X, ev.Y)
	case InputWhole:
		n.Whole(m, ev.X, ev.Y, ev.Source)
	}
}
