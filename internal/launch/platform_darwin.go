//go:build darwin

package launch

import (
	"fmt"
	"os/exec"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func bringToForeground(pid int) error {
	script := fmt.Sprintf(`tell application "System Events" to set frontmost of (first process whose unix id is %d) to true`, pid)
	out, err := exec.Command("osascript", "-e", script).CombinedOutput()
	if err != nil {
		return &LaunchError{Op: "foreground", Executable: "osascript", Err: fmt.Errorf("%q: %w", string(out), err)}
	}
	return nil
}
