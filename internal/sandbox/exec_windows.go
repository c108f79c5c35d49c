//go:build windows

package sandbox

import (
	"os/exec"
)

// Windows has no Unix process groups; only the direct child is killed.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
