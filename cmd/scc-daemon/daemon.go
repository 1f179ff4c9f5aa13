package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/standardbeagle/sccd/internal/config"
	"github.com/standardbeagle/sccd/internal/daemon"
	"github.com/standardbeagle/sccd/internal/metrics"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background daemon",
	Long: `Manage the daemon that owns the controller and serves clients.

The daemon supervises the OSD and autoswitch companions unless started
with --alone.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground",
	Run:   runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Run:   runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon",
	Run:   runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	Run:   runDaemonStatus,
}

func init() {
	flags := daemonCmd.PersistentFlags()
	flags.String("pid-file", "", "PID file path (default next to the socket)")

	start := daemonStartCmd.Flags()
	start.Bool("alone", false, "Do not start OSD and autoswitch companions")
	start.String("profile", "", "Profile loaded at start")
	start.String("config", "", "Configuration file (default $XDG_CONFIG_HOME/scc/daemon.kdl)")
	start.Bool("no-watch", false, "Do not reload the configuration when it changes")
	daemonRestartCmd.Flags().AddFlagSet(start)

	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func getPIDPath(cmd *cobra.Command) string {
	pidPath, _ := cmd.Flags().GetString("pid-file")
	if pidPath == "" {
		pidPath = daemon.DefaultPIDPath()
	}
	return pidPath
}

func runDaemonStart(cmd *cobra.Command, args []string) {
	logger := newLogger(cmd)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	cfg := daemon.DefaultConfig()
	cfg.SocketPath = getSocketPath(cmd)
	cfg.PIDPath = getPIDPath(cmd)
	cfg.Alone, _ = cmd.Flags().GetBool("alone")
	cfg.DefaultProfile, _ = cmd.Flags().GetString("profile")
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg.ConfigPath = path
	}
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		cfg.WatchConfig = false
	}
	cfg.Debug = isDebug(cmd)
	cfg.Logger = logger
	cfg.Metrics = metrics.New()

	d := daemon.New(cfg)
	if err := d.Start(); err != nil {
		logger.Error("failed to start daemon", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := d.Shutdown(shutdownCtx); err != nil {
		logger.Error("daemon shutdown error", "error", err)
		os.Exit(1)
	}
}

// stopDaemon sends SIGTERM to the pid recorded in the pid file and waits
// for the socket to go away.
func stopDaemon(cmd *cobra.Command) error {
	pidPath := getPIDPath(cmd)
	pid, err := daemon.ReadPID(pidPath)
	if err != nil {
		return fmt.Errorf("daemon is not running: %w", err)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("daemon is not running (stale pid file %s)", pidPath)
		}
		return fmt.Errorf("signal daemon: %w", err)
	}

	socketPath := getSocketPath(cmd)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !daemon.IsRunning(socketPath) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon (pid %d) did not stop", pid)
}

func runDaemonStop(cmd *cobra.Command, args []string) {
	if err := stopDaemon(cmd); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Daemon stopped")
}

func runDaemonRestart(cmd *cobra.Command, args []string) {
	if daemon.IsRunning(getSocketPath(cmd)) {
		if err := stopDaemon(cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	runDaemonStart(cmd, args)
}

func runDaemonStatus(cmd *cobra.Command, args []string) {
	socketPath := getSocketPath(cmd)

	c, err := daemon.Dial(socketPath, 2*time.Second)
	if err != nil {
		fmt.Println("Daemon is not running")
		os.Exit(1)
	}
	defer c.Close()

	fmt.Printf("Daemon v%s (pid %d)\n", c.Hello.Version, c.Hello.PID)
	fmt.Printf("Socket: %s\n", socketPath)
	fmt.Printf("Config: %s\n", config.DefaultPath())
	fmt.Printf("Profile: %s\n", c.Hello.Profile)
	fmt.Printf("Controllers: %d\n", c.Hello.ControllerCount)
	if c.Hello.Err != "" {
		fmt.Printf("Error: %s\n", c.Hello.Err)
	}
}
