package daemon

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/standardbeagle/sccd/internal/engine"
)

// SpecialActions carries out actions that need the daemon rather than the
// virtual devices: OSD requests, profile switches and controller control.
//
// Its methods must be called with the daemon lock held, which is the case
// for engine actions fired through Input, the mainloop or Selected.
type SpecialActions struct {
	d *Daemon
}

// SpecialActions returns the handler given to engine actions.
func (d *Daemon) SpecialActions() *SpecialActions {
	return &SpecialActions{d: d}
}

// ShowOSD displays a message for timeout (0 = companion default).
func (sa *SpecialActions) ShowOSD(text string, timeout time.Duration) error {
	args := []string{"message"}
	if timeout > 0 {
		args = append(args, "-t", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
	}
	return sa.d.osd(append(args, text)...)
}

// ShowArea highlights a screen area.
func (sa *SpecialActions) ShowArea(x1, y1, x2, y2 int) error {
	return sa.d.osd("area",
		"-x", strconv.Itoa(x1), "-y", strconv.Itoa(y1),
		"--width", strconv.Itoa(x2-x1), "--height", strconv.Itoa(y2-y1))
}

// ClearOSD hides everything the OSD companion shows.
func (sa *SpecialActions) ClearOSD() error {
	return sa.d.osd("clear")
}

// ShowKeyboard shows the on-screen keyboard.
func (sa *SpecialActions) ShowKeyboard() error {
	return sa.d.osd("keyboard")
}

// ShowMenu displays a menu. Menu ids containing a dot name menu files,
// which are searched in the menu directories; other ids refer to menus of
// the active profile.
func (sa *SpecialActions) ShowMenu(menuType, menuID, confirmWith, cancelWith string, extra ...string) error {
	d := sa.d
	args := []string{menuType, "--confirm-with", confirmWith, "--cancel-with", cancelWith}
	if strings.Contains(menuID, ".") {
		path, ok := engine.FindMenu(menuID, d.state.cfg.MenuDirs()...)
		if !ok {
			d.logger.Error("cannot show menu: menu not found", "menu", menuID)
			return fmt.Errorf("menu %s not found", menuID)
		}
		args = append(args, "--from-file", path)
	} else {
		args = append(args, "--from-profile", d.state.mapper.Profile().Filename(), menuID)
	}
	return d.osd(append(args, extra...)...)
}

// SwitchProfile activates the profile with the given name.
func (sa *SpecialActions) SwitchProfile(name string) error {
	d := sa.d
	path, ok := engine.FindProfile(name, d.state.cfg.ProfileDirs()...)
	if !ok {
		d.logger.Error("cannot load profile: profile not found", "profile", name)
		return fmt.Errorf("profile %q not found", name)
	}
	return d.setProfile(path)
}

// SetLED sets the active controller's LED level.
func (sa *SpecialActions) SetLED(level int) error {
	return sa.d.setLED(level)
}

// TurnOff turns the active controller off.
func (sa *SpecialActions) TurnOff() error {
	c := sa.d.state.mapper.Controller()
	if c == nil {
		return nil
	}
	return c.TurnOff()
}
