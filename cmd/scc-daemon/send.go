package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/standardbeagle/sccd/internal/daemon"
	"github.com/standardbeagle/sccd/internal/protocol"
)

var sendCmd = &cobra.Command{
	Use:   "send [command]",
	Short: "Send commands to the daemon",
	Long: `Send a single command line, or read command lines from stdin.

Examples:
  scc-daemon send "Profile: ~/.config/scc/profiles/Desktop.sccprofile"
  scc-daemon send Led: 40
  echo "Reconfigure." | scc-daemon send`,
	Run: runSend,
}

func init() {
	sendCmd.Flags().Duration("timeout", 5*time.Second, "Reply timeout")
}

func runSend(cmd *cobra.Command, args []string) {
	timeout, _ := cmd.Flags().GetDuration("timeout")

	c, err := daemon.Dial(getSocketPath(cmd), timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Daemon is not running: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	c.OnMessage = func(line string) { fmt.Println(line) }

	if len(args) > 0 {
		if !sendLine(c, strings.Join(args, " ")) {
			os.Exit(1)
		}
		return
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	failed := false
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if protocol.IsBlank(line) {
			continue
		}
		if !sendLine(c, line) {
			failed = true
		}
	}
	if failed && !interactive {
		os.Exit(1)
	}
}

// sendLine prints the reply to line and reports whether it was OK.
func sendLine(c *daemon.Client, line string) bool {
	reply, err := c.Send(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(reply)
	return reply == protocol.LineOK
}
