package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/sccd/internal/daemon"
	"github.com/standardbeagle/sccd/internal/protocol"
)

var watchCmd = &cobra.Command{
	Use:   "watch SOURCE...",
	Short: "Print events for controller inputs",
	Long: `Observe the given inputs and print every event the daemon reports.

With --lock the inputs are locked instead, so their actions do not fire
while watching. Observing requires enable-sniffing in the configuration.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().Bool("lock", false, "Lock the inputs instead of observing them")
}

func runWatch(cmd *cobra.Command, args []string) {
	lock, _ := cmd.Flags().GetBool("lock")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := daemon.Dial(getSocketPath(cmd), 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Daemon is not running: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	c.OnMessage = printMessage

	verb := protocol.PrefixObserve
	if lock {
		verb = protocol.PrefixLock
	}
	if err := c.Command(verb + " " + strings.Join(args, " ")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		line, err := c.ReadLine()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, daemon.ErrNotConnected) {
				fmt.Fprintf(os.Stderr, "Connection lost: %v\n", err)
				os.Exit(1)
			}
			return
		}
		printMessage(line)
	}
}

func printMessage(line string) {
	src, values, ok := protocol.ParseEvent(line)
	if !ok {
		fmt.Println(line)
		return
	}
	vals := make([]string, len(values))
	for i, v := range values {
		vals[i] = fmt.Sprint(v)
	}
	fmt.Printf("%-10s %s\n", src, strings.Join(vals, " "))
}
