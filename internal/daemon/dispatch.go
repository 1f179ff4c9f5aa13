package daemon

import (
	"fmt"
	"strings"
	"time"

	"github.com/standardbeagle/sccd/internal/action"
	"github.com/standardbeagle/sccd/internal/engine"
	"github.com/standardbeagle/sccd/internal/protocol"
	"github.com/standardbeagle/sccd/internal/source"
)

// MenuReleaseDelay is how long a selected menu item stays pressed.
const MenuReleaseDelay = 100 * time.Millisecond

// execute runs one command line for s. Commands are serialized by the
// daemon lock against each other and against controller input.
func (d *Daemon) execute(s *Session, line string) {
	cmd, parseErr := protocol.ParseLine(line)

	d.state.mu.Lock()
	defer d.state.mu.Unlock()

	err := d.dispatch(s, cmd, parseErr)
	d.metrics.Command(cmd.Kind.String(), err == nil)

	reply := protocol.FormatOK()
	if err != nil {
		s.logger.Debug("command failed", "command", cmd.Kind, "error", err)
		reply = protocol.FormatFail(failMessage(err))
	}
	if werr := s.write(reply); werr != nil {
		s.logger.Debug("reply failed", "error", werr)
	}

	if err == nil && cmd.Kind == protocol.CmdReconfigure {
		d.broadcast(protocol.FormatReconfigured())
	}
}

func (d *Daemon) dispatch(s *Session, cmd protocol.Command, parseErr error) error {
	if parseErr != nil {
		switch cmd.Kind {
		case protocol.CmdObserve:
			if !d.state.cfg.EnableSniffing {
				return ErrSniffingDisabled
			}
		case protocol.CmdSelected:
			return fmt.Errorf("%w: %v", ErrMenuItemInvalid, parseErr)
		}
		return parseErr
	}

	switch cmd.Kind {
	case protocol.CmdProfile:
		return d.setProfile(cmd.Path)
	case protocol.CmdOSD:
		return d.forwardOSD(cmd.Text)
	case protocol.CmdLed:
		return d.setLED(cmd.Level)
	case protocol.CmdObserve:
		return d.observe(s, cmd.Tokens)
	case protocol.CmdLock:
		return d.lock(s, cmd.Tokens)
	case protocol.CmdUnlock:
		d.releaseAll(s)
		return nil
	case protocol.CmdReconfigure:
		d.reconfigure()
		return nil
	case protocol.CmdSelected:
		return d.selectMenuItem(cmd.MenuID, cmd.ItemID)
	case protocol.CmdRegister:
		d.register(s, cmd.Role)
		return nil
	}
	return protocol.ErrUnknownCommand
}

// setProfile loads path and makes it active. Sessions keep their locks and
// observations on the new profile. On failure the old profile stays.
func (d *Daemon) setProfile(path string) error {
	p, err := engine.LoadProfile(path, d.parser)
	if err != nil {
		d.logger.Error("failed to load profile", "path", path, "error", err)
		return err
	}
	d.state.mapper.SetProfile(p)
	for s := range d.state.sessions {
		d.reapply(s)
	}
	d.logger.Info("loaded profile", "path", path)
	return nil
}

func (d *Daemon) forwardOSD(text string) error {
	return d.osd("message", text)
}

// osd forwards a request to the registered OSD companion. A companion that
// cannot be written to is dropped.
func (d *Daemon) osd(args ...string) error {
	s := d.state.companions[protocol.RoleOSD]
	if s == nil {
		d.logger.Warn("cannot show OSD; no OSD companion registered")
		return ErrNoCompanion
	}
	if err := s.write(protocol.FormatOSDRequest(args...)); err != nil {
		d.logger.Error("failed to display OSD", "error", err)
		delete(d.state.companions, protocol.RoleOSD)
		return fmt.Errorf("%w: %v", ErrOSDFailed, err)
	}
	return nil
}

// setLED applies the clamped level to the active controller, if any.
func (d *Daemon) setLED(level int) error {
	c := d.state.mapper.Controller()
	if c == nil {
		return nil
	}
	if err := c.SetLEDLevel(engine.ClampLED(level)); err != nil {
		d.logger.Warn("failed to set LED level", "controller", c.ID(), "error", err)
	}
	return nil
}

func (d *Daemon) observe(s *Session, tokens []string) error {
	if !d.state.cfg.EnableSniffing {
		d.logger.Warn("refused observe request: sniffing disabled")
		return ErrSniffingDisabled
	}
	srcs, err := source.ParseList(tokens)
	if err != nil {
		return err
	}
	for _, src := range srcs {
		if _, ok := s.observed[src]; ok {
			continue
		}
		if err := d.wrap(s, src, action.KindObserving); err != nil {
			return err
		}
	}
	return nil
}

// lock wraps every requested source or none. A source is lockable only if
// it and the sources sharing its hardware are not locked by anyone.
func (d *Daemon) lock(s *Session, tokens []string) error {
	srcs, err := source.ParseList(tokens)
	if err != nil {
		return err
	}
	profile := d.state.mapper.Profile()
	for _, src := range srcs {
		for _, rel := range src.Related() {
			if action.IsLocked(profile.Slot(rel)) {
				return &LockConflictError{Source: src}
			}
		}
	}
	for _, src := range srcs {
		if err := d.wrap(s, src, action.KindLocked); err != nil {
			return err
		}
	}
	return nil
}

// wrap installs a wrapper owned by s. The source is recorded for release
// only once the wrapper is in place.
func (d *Daemon) wrap(s *Session, src source.Source, kind action.Kind) error {
	err := d.state.mapper.Apply(src, func(n *action.Node) (*action.Node, error) {
		if kind == action.KindLocked {
			return action.Lock(n, src, s), nil
		}
		return action.Observe(n, src, s), nil
	})
	if err != nil {
		s.logger.Error("wrap failed", "source", src, "kind", kind, "error", err)
		return fmt.Errorf("wrap %s: %w", src, err)
	}
	if kind == action.KindLocked {
		s.locked[src] = struct{}{}
	} else {
		s.observed[src] = struct{}{}
	}
	s.logger.Debug("source wrapped", "source", src, "kind", kind)
	return nil
}

// reapply wraps the sources s holds again, after the profile changed.
func (d *Daemon) reapply(s *Session) {
	for _, src := range sortedSources(s.observed) {
		if d.wrap(s, src, action.KindObserving) != nil {
			delete(s.observed, src)
		}
	}
	for _, src := range sortedSources(s.locked) {
		if d.wrap(s, src, action.KindLocked) != nil {
			delete(s.locked, src)
		}
	}
}

// releaseAll restores every source s locked or observes.
func (d *Daemon) releaseAll(s *Session) {
	for _, src := range sortedSources(s.locked) {
		d.release(s, src, action.KindLocked)
	}
	s.locked = make(map[source.Source]struct{})

	for _, src := range sortedSources(s.observed) {
		d.release(s, src, action.KindObserving)
	}
	s.observed = make(map[source.Source]struct{})
}

func (d *Daemon) release(s *Session, src source.Source, kind action.Kind) {
	err := d.state.mapper.Apply(src, func(n *action.Node) (*action.Node, error) {
		return action.Release(n, src, s, kind)
	})
	if err != nil {
		s.logger.Error("release failed", "source", src, "kind", kind, "error", err)
		return
	}
	s.logger.Debug("source released", "source", src, "kind", kind)
}

// selectMenuItem presses the item's action now and releases it after
// MenuReleaseDelay, both on the mainloop.
func (d *Daemon) selectMenuItem(menuID, itemID string) error {
	item, err := d.resolveMenuItem(menuID, itemID)
	if err != nil {
		d.logger.Warn("selected menu item is no longer valid", "menu", menuID, "item", itemID, "error", err)
		return fmt.Errorf("%w: %v", ErrMenuItemInvalid, err)
	}
	a := item.Action
	d.state.mapper.Schedule(0, func(m action.Mapper) {
		a.ButtonPress(m)
		m.Schedule(MenuReleaseDelay, a.ButtonRelease)
	})
	return nil
}

// resolveMenuItem looks menuID up as a menu file when it contains a dot,
// and in the active profile otherwise.
func (d *Daemon) resolveMenuItem(menuID, itemID string) (*engine.MenuItem, error) {
	if strings.Contains(menuID, ".") {
		path, ok := engine.FindMenu(menuID, d.state.cfg.MenuDirs()...)
		if !ok {
			return nil, fmt.Errorf("menu %s not found", menuID)
		}
		menu, err := engine.LoadMenuFile(path, d.parser)
		if err != nil {
			return nil, err
		}
		return menu.ItemByID(itemID)
	}
	menu, ok := d.state.mapper.Profile().Menu(menuID)
	if !ok {
		return nil, fmt.Errorf("menu %s not found in profile", menuID)
	}
	return menu.ItemByID(itemID)
}

// register assigns s to a companion role, disconnecting the previous
// holder.
func (d *Daemon) register(s *Session, role string) {
	if _, ok := companionBinaries[role]; !ok {
		d.logger.Warn("ignoring registration for unknown role", "role", role)
		return
	}
	if prev := d.state.companions[role]; prev != nil && prev != s {
		prev.Close()
	}
	d.state.companions[role] = s
	d.logger.Info("registered companion", "role", role, "session", s.id)
}
