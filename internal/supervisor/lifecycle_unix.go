//go:build unix

package supervisor

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcAttr puts the child in its own process group so its descendants
// die with it.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killGroup sends SIGKILL to the process group of pid, falling back to the
// process itself.
func killGroup(pid int) error {
	pgid, err := unix.Getpgid(pid)
	if err == nil && pgid > 0 {
		return unix.Kill(-pgid, unix.SIGKILL)
	}
	return unix.Kill(pid, unix.SIGKILL)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH)
}

func isExecutable(mode uint32) bool {
	return mode&0o111 != 0
}
