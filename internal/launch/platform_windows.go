//go:build windows

package launch

import (
	"syscall"

	"golang.org/x/sys/windows"
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procAllowSetForegroundWindow = user32.NewProc("AllowSetForegroundWindow")
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// bringToForeground lets the child take focus; Windows only allows the
// foreground process to hand it over.
func bringToForeground(pid int) error {
	if err := procAllowSetForegroundWindow.Find(); err != nil {
		return &LaunchError{Op: "foreground", Executable: "user32.dll", Err: err}
	}
	r, _, err := procAllowSetForegroundWindow.Call(uintptr(pid))
	if r == 0 {
		return &LaunchError{Op: "foreground", Executable: "user32.dll", Err: err}
	}
	return nil
}
