//go:build unix

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/standardbeagle/sccd/internal/action"
	"github.com/standardbeagle/sccd/internal/config"
	"github.com/standardbeagle/sccd/internal/engine"
	"github.com/standardbeagle/sccd/internal/metrics"
	"github.com/standardbeagle/sccd/internal/protocol"
	"github.com/standardbeagle/sccd/internal/source"
)

// countingParser resolves descriptors found in actions and leaves
// everything else opaque.
func countingParser(actions map[string]*countingAction) engine.Parser {
	return engine.ParserFunc(func(desc string) (action.Action, error) {
		if a, ok := actions[desc]; ok {
			return a, nil
		}
		return engine.OpaqueParser{}.Parse(desc)
	})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestHandshake(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d)

	if c.Hello.Version != Version {
		t.Errorf("Version = %q, want %q", c.Hello.Version, Version)
	}
	if c.Hello.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", c.Hello.PID, os.Getpid())
	}
	if c.Hello.ControllerCount != 0 {
		t.Errorf("ControllerCount = %d, want 0", c.Hello.ControllerCount)
	}
	if c.Hello.Err != "" {
		t.Errorf("Err = %q, want healthy daemon", c.Hello.Err)
	}
	waitFor(t, "session registration", func() bool { return sessionCount(d) == 1 })
}

func TestLockRedirectsEvents(t *testing.T) {
	d := startDaemon(t, nil)
	a := &countingAction{name: "a"}
	bind(d, source.A, a)
	c := dial(t, d)

	expectReply(t, c, "Lock: A B", protocol.LineOK)

	d.Input(engine.InputEvent{Kind: engine.InputPress, Source: source.A})
	expectLine(t, c, "Event: A 1")
	d.Input(engine.InputEvent{Kind: engine.InputRelease, Source: source.A})
	expectLine(t, c, "Event: A 0")

	if n := a.presses.Load(); n != 0 {
		t.Errorf("locked action fired %d times", n)
	}

	expectReply(t, c, "Unlock.", protocol.LineOK)
	d.Input(engine.InputEvent{Kind: engine.InputPress, Source: source.A})
	if n := a.presses.Load(); n != 1 {
		t.Errorf("presses after unlock = %d, want 1", n)
	}
}

func TestLockTriggerEvent(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d)

	expectReply(t, c, "Lock: LT", protocol.LineOK)
	d.Input(engine.InputEvent{Kind: engine.InputTrigger, Source: source.LT, X: 200, Y: 10})
	expectLine(t, c, "Event: LT 200 10")
}

func TestLockConflictIsAllOrNothing(t *testing.T) {
	d := startDaemon(t, nil)
	c1 := dial(t, d)
	c2 := dial(t, d)

	expectReply(t, c1, "Lock: A", protocol.LineOK)
	expectReply(t, c2, "Lock: B A", "Fail: Cannot lock A")

	if k := slot(d, source.B).Kind(); k != action.KindBase {
		t.Errorf("B was wrapped (%s) although the request failed", k)
	}
	owner, _ := action.LockOwner(slot(d, source.A))
	withState(d, func(st *State) {
		for s := range st.sessions {
			if owner == s && len(s.locked) != 1 {
				t.Errorf("owner holds %d locks, want 1", len(s.locked))
			}
		}
	})

	// Same session locking twice is a conflict as well.
	expectReply(t, c1, "Lock: A", "Fail: Cannot lock A")
}

func TestLockUnknownSource(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d)

	expectReply(t, c, "Lock: A FOO", "Fail: Unknown source: FOO")
	if action.IsLocked(slot(d, source.A)) {
		t.Error("A locked although the request failed")
	}
	expectReply(t, c, "Lock:", "Fail: no sources given")
}

func TestLockStickNeedsStickPress(t *testing.T) {
	d := startDaemon(t, nil)
	c1 := dial(t, d)
	c2 := dial(t, d)

	expectReply(t, c1, "Lock: STICKPRESS", protocol.LineOK)
	expectReply(t, c2, "Lock: STICK", "Fail: Cannot lock STICK")

	expectReply(t, c1, "Unlock.", protocol.LineOK)
	expectReply(t, c2, "Lock: STICK", protocol.LineOK)

	if action.IsLocked(slot(d, source.StickPress)) {
		t.Error("locking STICK must not wrap STICKPRESS")
	}
	expectReply(t, c1, "Lock: STICKPRESS", protocol.LineOK)
}

func TestUnlockRestoresChain(t *testing.T) {
	d := startDaemon(t, func(cfg *Config) { cfg.UserConfig.EnableSniffing = true })
	c := dial(t, d)

	before := slot(d, source.RB)
	expectReply(t, c, "Observe: RB", protocol.LineOK)
	expectReply(t, c, "Lock: RB", protocol.LineOK)
	if depth := action.Depth(slot(d, source.RB)); depth != 2 {
		t.Fatalf("Depth = %d, want 2", depth)
	}

	expectReply(t, c, "Unlock.", protocol.LineOK)
	if after := slot(d, source.RB); after != before {
		t.Errorf("slot after unlock = %v, want original chain %v", after, before)
	}
}

func TestObserveSniffingDisabled(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d)

	expectReply(t, c, "Observe: A", "Fail: "+protocol.MsgSniffingDisabled)
	expectReply(t, c, "Observe: FOO", "Fail: "+protocol.MsgSniffingDisabled)
	if k := slot(d, source.A).Kind(); k != action.KindBase {
		t.Errorf("A wrapped as %s", k)
	}
}

func TestObserveForwardsAndReports(t *testing.T) {
	d := startDaemon(t, func(cfg *Config) { cfg.UserConfig.EnableSniffing = true })
	a := &countingAction{name: "a"}
	bind(d, source.A, a)
	c1 := dial(t, d)
	c2 := dial(t, d)

	expectReply(t, c1, "Observe: A", protocol.LineOK)
	expectReply(t, c1, "Observe: A", protocol.LineOK)
	expectReply(t, c2, "Observe: A", protocol.LineOK)
	if depth := action.Depth(slot(d, source.A)); depth != 2 {
		t.Errorf("Depth = %d, want one wrapper per observer", depth)
	}

	d.Input(engine.InputEvent{Kind: engine.InputPress, Source: source.A})
	expectLine(t, c1, "Event: A 1")
	expectLine(t, c2, "Event: A 1")
	if n := a.presses.Load(); n != 1 {
		t.Errorf("observed action fired %d times, want 1", n)
	}
}

func TestObserveStickThrottle(t *testing.T) {
	d := startDaemon(t, func(cfg *Config) { cfg.UserConfig.EnableSniffing = true })
	stick := &countingAction{name: "stick"}
	bind(d, source.Stick, stick)
	c := dial(t, d)

	expectReply(t, c, "Observe: STICK", protocol.LineOK)

	d.Input(engine.InputEvent{Kind: engine.InputWhole, Source: source.Stick, X: 100, Y: 100})
	d.Input(engine.InputEvent{Kind: engine.InputWhole, Source: source.Stick, X: 400, Y: 0})
	d.Input(engine.InputEvent{Kind: engine.InputWhole, Source: source.Stick, X: 450, Y: 50})
	d.Input(engine.InputEvent{Kind: engine.InputWhole, Source: source.Stick, X: 450, Y: -400})

	expectLine(t, c, "Event: STICK 400 0")
	expectLine(t, c, "Event: STICK 450 -400")
	if n := stick.wholes.Load(); n != 4 {
		t.Errorf("stick action saw %d updates, want all 4", n)
	}
}

func TestDisconnectReleases(t *testing.T) {
	d := startDaemon(t, func(cfg *Config) { cfg.UserConfig.EnableSniffing = true })
	before := slot(d, source.X)
	c := dial(t, d)

	expectReply(t, c, "Lock: X Y", protocol.LineOK)
	expectReply(t, c, "Observe: LEFT", protocol.LineOK)
	c.Close()

	waitFor(t, "session cleanup", func() bool { return sessionCount(d) == 0 })
	if slot(d, source.X) != before {
		t.Error("X still wrapped after disconnect")
	}
	for _, src := range []source.Source{source.Y, source.Left} {
		if k := slot(d, src).Kind(); k != action.KindBase {
			t.Errorf("%s still wrapped as %s", src, k)
		}
	}

	c2 := dial(t, d)
	expectReply(t, c2, "Lock: X", protocol.LineOK)
}

func TestUnknownCommandAndBlankLines(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d)

	expectReply(t, c, "Bogus", "Fail: "+protocol.MsgUnknownCommand)
	expectReply(t, c, "\n\r\nUnlock.", protocol.LineOK)
	expectReply(t, c, "Unlock.", protocol.LineOK)
}

func TestLedAndControllers(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d)

	expectReply(t, c, "Led: 50", protocol.LineOK)

	ctrl := &fakeController{id: "sc0"}
	d.AddController(ctrl)
	expectLine(t, c, "Controller count: 1")
	if got := ctrl.LEDLevel(); got != config.DefaultLEDLevel {
		t.Errorf("initial LED = %d, want %d", got, config.DefaultLEDLevel)
	}

	expectReply(t, c, "Led: 150", protocol.LineOK)
	if got := ctrl.LEDLevel(); got != 100 {
		t.Errorf("LED = %d, want clamped 100", got)
	}
	expectReply(t, c, "Led: -3", protocol.LineOK)
	if got := ctrl.LEDLevel(); got != 0 {
		t.Errorf("LED = %d, want clamped 0", got)
	}
	expectReply(t, c, "Led: 99999999999999999999", protocol.LineOK)
	if got := ctrl.LEDLevel(); got != 100 {
		t.Errorf("LED = %d, want out-of-range level clamped to 100", got)
	}

	reply, err := c.Send("Led: bright")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasPrefix(reply, protocol.PrefixFail) {
		t.Errorf("reply = %q, want Fail", reply)
	}

	second := &fakeController{id: "sc1"}
	d.AddController(second)
	expectLine(t, c, "Controller count: 2")
	d.RemoveController(ctrl)
	expectLine(t, c, "Controller count: 1")

	withState(d, func(st *State) {
		if st.mapper.Controller() != second {
			t.Error("remaining controller was not promoted")
		}
	})
	if c2 := dial(t, d); c2.Hello.ControllerCount != 1 {
		t.Errorf("handshake ControllerCount = %d, want 1", c2.Hello.ControllerCount)
	}
}

func TestErrorBroadcast(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d)

	d.SetError("device lost")
	expectLine(t, c, "Error: device lost")
	d.SetError("still lost")

	late := dial(t, d)
	if late.Hello.Err != "still lost" {
		t.Errorf("handshake Err = %q, want %q", late.Hello.Err, "still lost")
	}

	d.ClearError()
	expectLine(t, c, protocol.LineReady)
	expectLine(t, late, protocol.LineReady)
}

func TestProfileSwitchKeepsLocks(t *testing.T) {
	dir := shortTempDir(t)
	good := writeFile(t, dir, "good.sccprofile", `{"version": 1.4, "buttons": {"A": "count-a"}}`)
	bad := writeFile(t, dir, "bad.sccprofile", `{"buttons": {"NOPE": "x"}}`)

	a := &countingAction{name: "count-a"}
	d := startDaemon(t, func(cfg *Config) {
		cfg.Parser = countingParser(map[string]*countingAction{"count-a": a})
	})
	c := dial(t, d)

	expectReply(t, c, "Lock: B", protocol.LineOK)
	expectReply(t, c, "Profile: "+good, protocol.LineOK)

	if got := action.Unwrap(slot(d, source.A)); got != action.Action(a) {
		t.Errorf("A bound to %v, want count-a", got)
	}
	if !action.IsLocked(slot(d, source.B)) {
		t.Error("lock on B lost across profile switch")
	}
	if late := dial(t, d); late.Hello.Profile != good {
		t.Errorf("handshake profile = %q, want %q", late.Hello.Profile, good)
	}

	reply, err := c.Send("Profile: " + bad)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasPrefix(reply, protocol.PrefixFail) {
		t.Errorf("reply = %q, want Fail", reply)
	}
	withState(d, func(st *State) {
		if got := st.mapper.Profile().Filename(); got != good {
			t.Errorf("profile after failed load = %q, want %q", got, good)
		}
	})

	d.Input(engine.InputEvent{Kind: engine.InputPress, Source: source.B})
	expectLine(t, c, "Event: B 1")
}

func TestRegisterReplacesHolder(t *testing.T) {
	d := startDaemon(t, nil)
	first := dial(t, d)
	second := dial(t, d)

	expectReply(t, first, "Register: osd", protocol.LineOK)
	expectReply(t, second, "Register: osd", protocol.LineOK)

	_ = first.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := first.ReadLine(); err == nil {
		t.Error("previous OSD holder still connected")
	}
	waitFor(t, "holder cleanup", func() bool { return sessionCount(d) == 1 })

	expectReply(t, second, "Register: toaster", protocol.LineOK)
	withState(d, func(st *State) {
		if _, ok := st.companions["toaster"]; ok {
			t.Error("unknown role registered")
		}
		if st.companions[protocol.RoleOSD] == nil {
			t.Error("osd slot lost")
		}
	})
}

func TestOSDForwarding(t *testing.T) {
	d := startDaemon(t, nil)
	c := dial(t, d)

	expectReply(t, c, "OSD: hello", "Fail: "+protocol.MsgNoOSD)

	osd := dial(t, d)
	expectReply(t, osd, "Register: osd", protocol.LineOK)
	expectReply(t, c, "OSD: hello world", protocol.LineOK)

	expectOSDRequest(t, osd, "message", "hello world")

	osd.Close()
	waitFor(t, "companion cleanup", func() bool {
		var gone bool
		withState(d, func(st *State) { gone = st.companions[protocol.RoleOSD] == nil })
		return gone
	})
	expectReply(t, c, "OSD: again", "Fail: "+protocol.MsgNoOSD)
}

func expectOSDRequest(t *testing.T, c *Client, want ...string) {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})
	line, err := c.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	got, err := protocol.ParseOSDRequest(line)
	if err != nil {
		t.Fatalf("ParseOSDRequest(%q): %v", line, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("OSD request = %q, want %q", got, want)
	}
}

func TestReconfigureBroadcast(t *testing.T) {
	dir := shortTempDir(t)
	path := writeFile(t, dir, config.FileName, "led-level 30\n")
	d := startDaemon(t, func(cfg *Config) { cfg.ConfigPath = path })
	c1 := dial(t, d)
	c2 := dial(t, d)

	expectReply(t, c1, "Reconfigure.", protocol.LineOK)
	expectLine(t, c1, protocol.LineReconfigured)
	expectLine(t, c2, protocol.LineReconfigured)
	withState(d, func(st *State) {
		if st.cfg.LEDLevel != 30 {
			t.Errorf("LEDLevel = %d, want reloaded 30", st.cfg.LEDLevel)
		}
	})

	writeFile(t, dir, config.FileName, "led-level 400\n")
	expectReply(t, c1, "Reconfigure.", protocol.LineOK)
	expectLine(t, c1, protocol.LineReconfigured)
	withState(d, func(st *State) {
		if st.cfg.LEDLevel != 30 {
			t.Errorf("LEDLevel = %d, invalid file must keep 30", st.cfg.LEDLevel)
		}
	})
}

func companionConfig(dir string, autoswitch bool) string {
	cfg := "companion-dir \"" + dir + "\"\n"
	if autoswitch {
		cfg += `autoswitch {
    game {
        title "Portal 2"
        profile "Portal"
    }
}
`
	}
	return cfg
}

func TestReconfigureAutoswitch(t *testing.T) {
	dir := shortTempDir(t)
	writeExecutable(t, dir, "scc-osd-daemon", "exec sleep 30")
	writeExecutable(t, dir, "scc-autoswitch-daemon", "exec sleep 30")
	path := writeFile(t, dir, config.FileName, companionConfig(dir, false))

	d := startDaemon(t, func(cfg *Config) {
		cfg.UserConfig = nil
		cfg.ConfigPath = path
		cfg.DisplayAvailable = func() bool { return true }
	})
	if !d.supervisors.Has(protocol.RoleOSD) {
		t.Fatal("osd companion not started")
	}
	if d.supervisors.Has(protocol.RoleAutoswitch) {
		t.Fatal("autoswitch started without rules")
	}
	c := dial(t, d)

	writeFile(t, dir, config.FileName, companionConfig(dir, true))
	expectReply(t, c, "Reconfigure.", protocol.LineOK)
	if !d.supervisors.Has(protocol.RoleAutoswitch) {
		t.Fatal("autoswitch not started after rules appeared")
	}
	waitFor(t, "autoswitch process", func() bool {
		sup := d.supervisors.Get(protocol.RoleAutoswitch)
		return sup != nil && sup.Running()
	})

	writeFile(t, dir, config.FileName, companionConfig(dir, false))
	expectReply(t, c, "Reconfigure.", protocol.LineOK)
	if d.supervisors.Has(protocol.RoleAutoswitch) {
		t.Error("autoswitch still supervised after rules were removed")
	}
	if !d.supervisors.Has(protocol.RoleOSD) {
		t.Error("osd companion stopped by reconfigure")
	}
	if got := d.Info().Companions; !reflect.DeepEqual(got, []string{protocol.RoleOSD}) {
		t.Errorf("Companions = %v", got)
	}
}

func TestAloneStartsNoCompanions(t *testing.T) {
	dir := shortTempDir(t)
	writeExecutable(t, dir, "scc-osd-daemon", "exec sleep 30")
	writeExecutable(t, dir, "scc-autoswitch-daemon", "exec sleep 30")
	path := writeFile(t, dir, config.FileName, companionConfig(dir, true))

	d := startDaemon(t, func(cfg *Config) {
		cfg.UserConfig = nil
		cfg.ConfigPath = path
		cfg.Alone = true
		cfg.DisplayAvailable = func() bool { return true }
	})
	c := dial(t, d)
	expectReply(t, c, "Reconfigure.", protocol.LineOK)

	if names := d.supervisors.Names(); len(names) != 0 {
		t.Errorf("supervised companions = %v, want none", names)
	}
}

func TestSelectedProfileMenu(t *testing.T) {
	dir := shortTempDir(t)
	profile := writeFile(t, dir, "menu.sccprofile", `{
  "menus": {
    "main": [
      {"id": "go", "name": "Go", "action": "menu-go"},
      {"separator": true},
      {"id": "idle", "name": "Idle"}
    ]
  }
}`)
	item := &countingAction{name: "menu-go"}
	d := startDaemon(t, func(cfg *Config) {
		cfg.DefaultProfile = profile
		cfg.Parser = countingParser(map[string]*countingAction{"menu-go": item})
	})
	c := dial(t, d)

	expectReply(t, c, "Selected: main go", protocol.LineOK)
	waitFor(t, "menu item press", func() bool { return item.presses.Load() == 1 })
	waitFor(t, "menu item release", func() bool { return item.releases.Load() == 1 })

	invalid := "Fail: " + protocol.MsgMenuItemInvalid
	expectReply(t, c, "Selected: main nope", invalid)
	expectReply(t, c, "Selected: other go", invalid)
	expectReply(t, c, "Selected: main", invalid)
}

func TestSelectedMenuFile(t *testing.T) {
	dir := shortTempDir(t)
	writeFile(t, dir, "quick.menu", `[{"id": "shot", "name": "Screenshot", "action": "shot"}]`)
	writeFile(t, dir, "broken.menu", `{"id": "shot"}`)

	item := &countingAction{name: "shot"}
	d := startDaemon(t, func(cfg *Config) {
		cfg.UserConfig.MenusDir = dir
		cfg.Parser = countingParser(map[string]*countingAction{"shot": item})
	})
	c := dial(t, d)

	expectReply(t, c, "Selected: quick.menu shot", protocol.LineOK)
	waitFor(t, "menu item press", func() bool { return item.presses.Load() == 1 })

	invalid := "Fail: " + protocol.MsgMenuItemInvalid
	expectReply(t, c, "Selected: broken.menu shot", invalid)
	expectReply(t, c, "Selected: missing.menu shot", invalid)
}

func TestSpecialActions(t *testing.T) {
	dir := shortTempDir(t)
	base := writeFile(t, dir, "base.sccprofile", `{}`)
	other := writeFile(t, dir, "other.sccprofile", `{"buttons": {"B": "noop"}}`)

	d := startDaemon(t, func(cfg *Config) {
		cfg.DefaultProfile = base
		cfg.UserConfig.ProfilesDir = dir
	})
	sa := d.SpecialActions()

	showOSD := &countingAction{name: "osd", onPress: func(action.Mapper) {
		if err := sa.ShowOSD("hi there", 2*time.Second); err != nil {
			t.Errorf("ShowOSD: %v", err)
		}
	}}
	clearOSD := &countingAction{name: "clear", onPress: func(action.Mapper) {
		if err := sa.ClearOSD(); err != nil {
			t.Errorf("ClearOSD: %v", err)
		}
	}}
	area := &countingAction{name: "area", onPress: func(action.Mapper) {
		if err := sa.ShowArea(10, 20, 110, 70); err != nil {
			t.Errorf("ShowArea: %v", err)
		}
	}}
	menu := &countingAction{name: "menu", onPress: func(action.Mapper) {
		if err := sa.ShowMenu("radialmenu", "main", "A", "B", "--size", "3"); err != nil {
			t.Errorf("ShowMenu: %v", err)
		}
	}}
	switchProfile := &countingAction{name: "switch", onPress: func(action.Mapper) {
		if err := sa.SwitchProfile("other"); err != nil {
			t.Errorf("SwitchProfile: %v", err)
		}
	}}
	bind(d, source.A, showOSD)
	bind(d, source.B, clearOSD)
	bind(d, source.X, area)
	bind(d, source.Y, menu)
	bind(d, source.Start, switchProfile)

	osd := dial(t, d)
	expectReply(t, osd, "Register: osd", protocol.LineOK)

	press := func(src source.Source) {
		d.Input(engine.InputEvent{Kind: engine.InputPress, Source: src})
	}
	press(source.A)
	expectOSDRequest(t, osd, "message", "-t", "2", "hi there")
	press(source.B)
	expectOSDRequest(t, osd, "clear")
	press(source.X)
	expectOSDRequest(t, osd, "area", "-x", "10", "-y", "20", "--width", "100", "--height", "50")
	press(source.Y)
	expectOSDRequest(t, osd, "radialmenu", "--confirm-with", "A", "--cancel-with", "B",
		"--from-profile", base, "main", "--size", "3")

	press(source.Start)
	withState(d, func(st *State) {
		if got := st.mapper.Profile().Filename(); got != other {
			t.Errorf("profile = %q, want %q", got, other)
		}
	})

	ctrl := &fakeController{id: "sc0"}
	d.AddController(ctrl)
	withState(d, func(*State) {
		if err := sa.SetLED(12); err != nil {
			t.Errorf("SetLED: %v", err)
		}
		if err := sa.TurnOff(); err != nil {
			t.Errorf("TurnOff: %v", err)
		}
		if err := sa.SwitchProfile("missing"); err == nil {
			t.Error("SwitchProfile of a missing profile succeeded")
		}
	})
	if ctrl.LEDLevel() != 12 || !ctrl.isOff() {
		t.Errorf("controller LED=%d off=%v", ctrl.LEDLevel(), ctrl.isOff())
	}
}

func TestCommandMetrics(t *testing.T) {
	m := metrics.New()
	d := startDaemon(t, func(cfg *Config) { cfg.Metrics = m })
	c := dial(t, d)

	expectReply(t, c, "Lock: A", protocol.LineOK)
	expectReply(t, c, "Bogus", "Fail: "+protocol.MsgUnknownCommand)
	d.Input(engine.InputEvent{Kind: engine.InputPress, Source: source.A})
	expectLine(t, c, "Event: A 1")

	n, err := testutil.GatherAndCount(m.Registry(), "scc_daemon_commands_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 2 {
		t.Errorf("command series = %d, want 2", n)
	}
	n, err = testutil.GatherAndCount(m.Registry(), "scc_daemon_events_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Errorf("event series = %d, want 1", n)
	}
}

func TestShutdown(t *testing.T) {
	cfg := testConfig(t)
	d := New(cfg)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c, err := Dial(d.SocketPath(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	expectReply(t, c, "Lock: A", protocol.LineOK)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.ReadLine(); err == nil {
		t.Error("client still connected after shutdown")
	}
	if _, err := os.Stat(cfg.SocketPath); !os.IsNotExist(err) {
		t.Errorf("socket file left behind: %v", err)
	}
	if _, err := Dial(cfg.SocketPath, 200*time.Millisecond); err == nil {
		t.Error("Dial succeeded after shutdown")
	}
	if err := d.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if err := d.Start(); err == nil {
		t.Error("Start after Shutdown succeeded")
	}
}
