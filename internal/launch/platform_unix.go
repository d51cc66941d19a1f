//go:build !windows && !darwin

package launch

import "syscall"

// the child gets its own process group so terminal signals aimed at the
// launcher do not reach it
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// bringToForeground is a no-op: X11 and Wayland leave focus to the window manager.
func bringToForeground(pid int) error {
	return nil
}
