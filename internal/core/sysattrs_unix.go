//go:build !windows

package core

import (
	"os"
	"os/exec"
	"syscall"
)

// isExecutable reports whether the binary carries an execute bit.
func isExecutable(fi os.FileInfo) bool {
	return fi.Mode()&0o111 != 0
}

// configureSysProcAttr places the core in its own process group so stop can
// signal the whole group, including anything the core forks.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateProcess asks the core's process group to exit gracefully.
func terminateProcess(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killProcess force-kills the core's process group.
func killProcess(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
