package daemon

import (
	"sync"

	"github.com/standardbeagle/sccd/internal/config"
	"github.com/standardbeagle/sccd/internal/engine"
	"github.com/standardbeagle/sccd/internal/protocol"
)

// State is everything shared between sessions, the mainloop and drivers.
// Every field is guarded by mu, the daemon lock. Writes to sessions only
// queue, so holding the lock never waits on a client.
type State struct {
	mu sync.Mutex

	sessions    map[*Session]struct{}
	controllers []engine.Controller
	companions  map[string]*Session // role -> registered session
	mapper      *engine.Mapper
	cfg         *config.Config
	errMsg      string
	exiting     bool
}

func (st *State) init(cfg *config.Config) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	st.sessions = make(map[*Session]struct{})
	st.companions = make(map[string]*Session)
	st.mapper = engine.NewMapper()
	st.cfg = cfg
}

// hello returns the handshake contents. Must be called with mu held.
func (st *State) hello() protocol.Hello {
	return protocol.Hello{
		Version:         Version,
		PID:             pid,
		Profile:         st.mapper.Profile().Filename(),
		ControllerCount: len(st.controllers),
		Err:             st.errMsg,
	}
}

// broadcast queues msg for every session, ignoring failures. Must be called
// with the daemon lock held.
func (d *Daemon) broadcast(msg []byte) {
	for s := range d.state.sessions {
		if err := s.write(msg); err != nil {
			d.logger.Debug("broadcast failed", "session", s.id, "error", err)
		}
	}
}

// AddController attaches a controller. The first controller drives the
// active mapper.
func (d *Daemon) AddController(c engine.Controller) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()

	d.state.controllers = append(d.state.controllers, c)
	if d.state.mapper.Controller() == nil {
		d.state.mapper.SetController(c)
		if err := c.SetLEDLevel(engine.ClampLED(d.state.cfg.LEDLevel)); err != nil {
			d.logger.Warn("failed to set LED level", "controller", c.ID(), "error", err)
		}
	}
	d.logger.Debug("controller added", "controller", c.ID())
	d.controllersChanged()
}

// RemoveController detaches a controller.
func (d *Daemon) RemoveController(c engine.Controller) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()

	kept := d.state.controllers[:0]
	for _, existing := range d.state.controllers {
		if existing != c {
			kept = append(kept, existing)
		}
	}
	d.state.controllers = kept

	if d.state.mapper.Controller() == c {
		var next engine.Controller
		if len(kept) > 0 {
			next = kept[0]
		}
		d.state.mapper.SetController(next)
	}
	d.logger.Debug("controller removed", "controller", c.ID())
	d.controllersChanged()
}

func (d *Daemon) controllersChanged() {
	n := len(d.state.controllers)
	d.metrics.SetControllers(n)
	d.broadcast(protocol.FormatControllerCount(n))
}

// SetError records a driver failure. Sessions are notified only when the
// daemon was healthy before.
func (d *Daemon) SetError(msg string) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()

	wasError := d.state.errMsg != ""
	d.state.errMsg = msg
	d.logger.Error("driver error", "error", msg)
	if !wasError {
		d.broadcast(protocol.FormatStatus(msg))
	}
}

// ClearError records recovery from a driver failure.
func (d *Daemon) ClearError() {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()

	if d.state.errMsg == "" {
		return
	}
	d.state.errMsg = ""
	d.logger.Debug("recovered after error")
	d.broadcast(protocol.FormatStatus(""))
}
