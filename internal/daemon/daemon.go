// Package daemon implements the scc-daemon control plane: the control
// socket, client sessions, the command dispatcher and companion process
// management. All shared state lives in State and is guarded by its mutex,
// the daemon lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/standardbeagle/sccd/internal/config"
	"github.com/standardbeagle/sccd/internal/engine"
	"github.com/standardbeagle/sccd/internal/metrics"
	"github.com/standardbeagle/sccd/internal/protocol"
	"github.com/standardbeagle/sccd/internal/supervisor"
)

// Version is the daemon version announced in the handshake.
const Version = "0.4.0"

// Config holds runtime configuration for the daemon.
type Config struct {
	// Socket and pid file. An empty PIDPath disables the pid file.
	SocketPath string
	PIDPath    string

	// ConfigPath is the user configuration file, reloaded on Reconfigure.
	ConfigPath string
	// UserConfig is used instead of loading ConfigPath at start.
	UserConfig *config.Config
	// WatchConfig reloads the user configuration when ConfigPath changes.
	WatchConfig bool

	// DefaultProfile is loaded at start. A failure leaves an empty profile.
	DefaultProfile string
	// Parser resolves profile action descriptors.
	Parser engine.Parser

	// Alone disables companion processes.
	Alone bool
	// Debug is passed on to companion processes.
	Debug bool

	// TickInterval is the mainloop period.
	TickInterval time.Duration
	// RestartDelay is the pause before a companion is respawned.
	RestartDelay time.Duration
	// WriteTimeout bounds every write to a client (0 = no timeout). A
	// client that times out is disconnected.
	WriteTimeout time.Duration
	// QueueSize bounds the messages queued for one client. A client that
	// falls further behind is disconnected.
	QueueSize int

	// DisplayAvailable reports whether companions can be shown.
	// Defaults to checking DISPLAY and WAYLAND_DISPLAY.
	DisplayAvailable func() bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SocketPath:   DefaultSocketPath(),
		PIDPath:      DefaultPIDPath(),
		ConfigPath:   config.DefaultPath(),
		WatchConfig:  true,
		TickInterval: 2 * time.Millisecond,
		RestartDelay: supervisor.DefaultRestartDelay,
		WriteTimeout: 5 * time.Second,
		QueueSize:    DefaultQueueSize,
	}
}

func envDisplayAvailable() bool {
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// Daemon serves the control socket and owns the shared state.
type Daemon struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	parser  engine.Parser

	state       State
	supervisors *supervisor.Set
	mainloops   []func()

	sockMgr  *SocketManager
	pidFile  *PIDFile
	listener net.Listener

	// Lifecycle
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    time.Time
	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a daemon. Nothing is started until Start.
func New(cfg Config) *Daemon {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Millisecond
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = supervisor.DefaultRestartDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Parser == nil {
		cfg.Parser = engine.OpaqueParser{}
	}
	if cfg.DisplayAvailable == nil {
		cfg.DisplayAvailable = envDisplayAvailable
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		config:  cfg,
		logger:  logger.With("component", "daemon"),
		metrics: cfg.Metrics,
		parser:  cfg.Parser,
		sockMgr: NewSocketManager(cfg.SocketPath),
		ctx:     ctx,
		cancel:  cancel,
	}
	d.state.init(cfg.UserConfig)
	d.supervisors = supervisor.NewSet(supervisor.Options{
		Logger:    logger,
		OnRestart: d.metrics.Restart,
	})
	if cfg.PIDPath != "" {
		d.pidFile = NewPIDFile(cfg.PIDPath)
	}
	return d
}

// AddMainloop registers fn to run on every mainloop tick with the daemon
// lock held. It must be called before Start.
func (d *Daemon) AddMainloop(fn func()) {
	d.mainloops = append(d.mainloops, fn)
}

// Start loads configuration and the default profile, binds the socket,
// starts companions and begins accepting connections.
func (d *Daemon) Start() error {
	d.shutdownMu.Lock()
	if d.shutdown {
		d.shutdownMu.Unlock()
		return errors.New("daemon already shutdown")
	}
	d.shutdownMu.Unlock()

	if d.pidFile != nil {
		if err := d.pidFile.Acquire(); err != nil {
			return err
		}
	}

	if d.config.UserConfig == nil && d.config.ConfigPath != "" {
		cfg, err := config.Load(d.config.ConfigPath)
		if err != nil {
			d.logger.Warn("failed to load configuration; using defaults", "error", err)
		} else {
			d.state.cfg = cfg
		}
	}
	d.loadDefaultProfile()

	listener, err := d.sockMgr.Listen()
	if err != nil {
		d.releasePIDFile()
		return fmt.Errorf("failed to create socket: %w", err)
	}
	d.listener = listener
	d.started = time.Now()
	d.logger.Info("daemon started", "socket", d.sockMgr.Path(), "version", Version)

	d.state.mu.Lock()
	d.startCompanions()
	metricsAddr := d.state.cfg.MetricsAddr
	d.state.mu.Unlock()

	d.wg.Add(2)
	go d.acceptLoop(listener)
	go d.mainloop()

	if d.config.WatchConfig && d.config.ConfigPath != "" {
		if err := config.Watch(d.ctx, d.config.ConfigPath, d.onConfigChange); err != nil {
			d.logger.Warn("cannot watch configuration", "path", d.config.ConfigPath, "error", err)
		}
	}

	if metricsAddr != "" && d.metrics != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.metrics.Serve(d.ctx, metricsAddr); err != nil {
				d.logger.Warn("metrics endpoint failed", "addr", metricsAddr, "error", err)
			}
		}()
	}
	return nil
}

func (d *Daemon) loadDefaultProfile() {
	if d.config.DefaultProfile == "" {
		return
	}
	p, err := engine.LoadProfile(d.config.DefaultProfile, d.parser)
	if err != nil {
		d.logger.Warn("failed to load profile; starting with no mappings", "error", err)
		return
	}
	d.state.mu.Lock()
	d.state.mapper.SetProfile(p)
	d.state.mu.Unlock()
}

// Shutdown marks the daemon as exiting, disconnects companions, kills
// supervised processes and closes every connection.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.shutdownMu.Lock()
	if d.shutdown {
		d.shutdownMu.Unlock()
		return nil
	}
	d.shutdown = true
	d.shutdownMu.Unlock()

	d.logger.Info("daemon stopping")

	d.state.mu.Lock()
	d.state.exiting = true
	for role, s := range d.state.companions {
		s.Close()
		delete(d.state.companions, role)
	}
	sessions := make([]*Session, 0, len(d.state.sessions))
	for s := range d.state.sessions {
		sessions = append(sessions, s)
	}
	d.state.mu.Unlock()

	killed := d.supervisors.KillAll()

	d.cancel()
	var errs []error
	if d.listener != nil {
		if err := d.sockMgr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("socket cleanup: %w", err))
		}
		d.listener = nil
	}
	for _, s := range sessions {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		for _, sup := range killed {
			<-sup.Done()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := d.releasePIDFile(); err != nil {
		errs = append(errs, fmt.Errorf("pid file: %w", err))
	}

	d.logger.Info("daemon stopped")
	return errors.Join(errs...)
}

func (d *Daemon) releasePIDFile() error {
	if d.pidFile == nil {
		return nil
	}
	return d.pidFile.Release()
}

// Wait blocks until the daemon stops.
func (d *Daemon) Wait() {
	<-d.ctx.Done()
	d.wg.Wait()
}

// SocketPath returns the control socket path.
func (d *Daemon) SocketPath() string {
	return d.sockMgr.Path()
}

// Info returns daemon status information.
func (d *Daemon) Info() Info {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	return Info{
		Version:         Version,
		PID:             os.Getpid(),
		SocketPath:      d.sockMgr.Path(),
		Uptime:          time.Since(d.started),
		Profile:         d.state.mapper.Profile().Filename(),
		Sessions:        len(d.state.sessions),
		ControllerCount: len(d.state.controllers),
		Companions:      d.supervisors.Names(),
		Error:           d.state.errMsg,
	}
}

// Info holds daemon status information.
type Info struct {
	Version         string
	PID             int
	SocketPath      string
	Uptime          time.Duration
	Profile         string
	Sessions        int
	ControllerCount int
	Companions      []string
	Error           string
}

// acceptLoop accepts new client connections.
func (d *Daemon) acceptLoop(listener net.Listener) {
	defer d.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
			}
			if isClosedError(err) {
				return
			}
			d.logger.Warn("accept error", "error", err)
			continue
		}

		s := d.openSession(conn)
		if s == nil {
			conn.Close()
			continue
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			s.Handle()
		}()
	}
}

// mainloop runs periodic callbacks and due engine tasks under the daemon
// lock.
func (d *Daemon) mainloop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case now := <-ticker.C:
			d.state.mu.Lock()
			for _, fn := range d.mainloops {
				fn()
			}
			d.state.mapper.RunDue(now)
			d.state.mu.Unlock()
		}
	}
}

// Input dispatches a controller event through the active profile.
func (d *Daemon) Input(ev engine.InputEvent) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	if d.state.exiting {
		return
	}
	d.state.mapper.Dispatch(ev)
}

func (d *Daemon) onConfigChange(cfg *config.Config, err error) {
	if err != nil {
		d.logger.Warn("configuration reload failed", "error", err)
		return
	}
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	if d.state.exiting {
		return
	}
	d.logger.Info("configuration changed")
	d.state.cfg = cfg
	d.updateAutoswitch()
	d.broadcast(protocol.FormatReconfigured())
}
