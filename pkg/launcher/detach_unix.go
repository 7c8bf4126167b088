//go:build unix

package launcher

import (
	"os/exec"
	"syscall"
)

// detach starts the job in a new session so that it survives the parent
// and does not receive the terminal's signals.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
