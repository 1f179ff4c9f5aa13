package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/sccd/internal/daemon"
)

const appName = "scc-daemon"

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Controller daemon control plane",
	Long: `scc-daemon owns the controller input-mapping engine and shares it
with local clients over a unix socket:
  - profile switching and LED control
  - exclusive locking and observation of controller inputs
  - OSD and autoswitch companion supervision`,
	Version: daemon.Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().String("socket", "", "Socket path for daemon communication")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(watchCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, daemon.Version))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getSocketPath(cmd *cobra.Command) string {
	socketPath, _ := cmd.Root().PersistentFlags().GetString("socket")
	if socketPath == "" {
		socketPath = daemon.DefaultSocketPath()
	}
	return socketPath
}

func isDebug(cmd *cobra.Command) bool {
	debug, _ := cmd.Root().PersistentFlags().GetBool("debug")
	return debug
}

// newLogger logs to stderr, at debug level under --debug.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if isDebug(cmd) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
