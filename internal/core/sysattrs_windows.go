//go:build windows

package core

import (
	"os"
	"os/exec"
	"syscall"
)

// Windows creation flags
const createNewProcessGroup = 0x00000200

// Execute bits do not exist on Windows; existence is enough.
func isExecutable(_ os.FileInfo) bool { return true }

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

// terminateProcess has no graceful SIGTERM equivalent on Windows; Kill is
// used for both stages.
func terminateProcess(pid int) error {
	return killProcess(pid)
}

func killProcess(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
