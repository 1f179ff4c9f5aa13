package daemon

import (
	"os"

	"github.com/standardbeagle/sccd/internal/config"
	"github.com/standardbeagle/sccd/internal/protocol"
	"github.com/standardbeagle/sccd/internal/supervisor"
)

// companionBinaries maps companion roles to the binaries the daemon
// supervises for them.
var companionBinaries = map[string]string{
	protocol.RoleOSD:        "scc-osd-daemon",
	protocol.RoleAutoswitch: "scc-autoswitch-daemon",
}

// startCompanions launches the companions whose preconditions hold. Must
// be called with the daemon lock held.
func (d *Daemon) startCompanions() {
	if d.config.Alone {
		d.logger.Info("running alone; companions disabled")
		return
	}
	if !d.config.DisplayAvailable() {
		d.logger.Warn("no display available; some functionality will be unavailable")
		return
	}
	d.startCompanion(protocol.RoleOSD)
	if d.state.cfg.HasAutoswitch() {
		d.startCompanion(protocol.RoleAutoswitch)
	}
}

func (d *Daemon) startCompanion(role string) {
	name := companionBinaries[role]
	path, err := supervisor.FindBinary(name, d.state.cfg.CompanionDir)
	if err != nil {
		d.logger.Warn("cannot start companion", "role", role, "error", err)
		return
	}
	var args []string
	if d.config.Debug {
		args = append(args, "debug")
	}
	if _, started := d.supervisors.Start(role, supervisor.Spec{
		Path:         path,
		Args:         args,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		RestartDelay: d.config.RestartDelay,
	}); started {
		d.logger.Info("companion started", "role", role, "path", path)
	}
}

// stopCompanion stops supervising role and disconnects its session.
func (d *Daemon) stopCompanion(role string) {
	if d.supervisors.Stop(role) {
		d.logger.Info("companion stopped", "role", role)
	}
	if s := d.state.companions[role]; s != nil {
		s.Close()
		delete(d.state.companions, role)
	}
}

// updateAutoswitch starts or stops the autoswitch companion to match the
// configuration. Must be called with the daemon lock held.
func (d *Daemon) updateAutoswitch() {
	role := protocol.RoleAutoswitch
	running := d.supervisors.Has(role) || d.state.companions[role] != nil
	need := d.state.cfg.HasAutoswitch()

	switch {
	case need && !running && !d.config.Alone && d.config.DisplayAvailable():
		d.startCompanion(role)
	case !need && running:
		d.stopCompanion(role)
	}
}

// reconfigure reloads the user configuration, keeping the current one if
// the file cannot be read, and re-evaluates the companions.
func (d *Daemon) reconfigure() {
	if d.config.ConfigPath != "" {
		cfg, err := config.Load(d.config.ConfigPath)
		if err != nil {
			d.logger.Warn("configuration reload failed", "error", err)
		} else {
			d.state.cfg = cfg
		}
	}
	d.updateAutoswitch()
}
