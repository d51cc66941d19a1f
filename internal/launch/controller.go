// Package launch starts the installed application and observes it.
package launch

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Controller launches the application through a Platform.
type Controller struct {
	platform Platform
}

func NewController(platform Platform) *Controller {
	if platform == nil {
		platform = NativePlatform()
	}
	return &Controller{platform: platform}
}

// Launch starts spec. A failure to bring the window forward is logged, not returned.
func (c *Controller) Launch(ctx context.Context, spec Spec) (*Process, error) {
	if err := checkExecutable(spec); err != nil {
		return nil, err
	}

	p, err := c.platform.Launch(ctx, spec)
	if err != nil {
		return nil, err
	}

	if spec.Foreground {
		if err := c.platform.BringToForeground(p); err != nil {
			slog.Warn("launch foreground", "pid", p.PID(), "error", err)
		}
	}
	return p, nil
}

func (c *Controller) WaitForExit(ctx context.Context, p *Process) (int, error) {
	return c.platform.WaitForExit(ctx, p)
}

func (c *Controller) IsRunning(p *Process) bool {
	return p != nil && p.Running()
}

func (c *Controller) Stop(p *Process) error {
	if p == nil {
		return ErrNotRunning
	}
	return p.Stop()
}

func checkExecutable(spec Spec) error {
	if spec.Executable == "" {
		return &LaunchError{Op: "resolve", Executable: spec.Executable, Err: ErrNoExecutable}
	}
	if spec.Dir != "" {
		if info, err := os.Stat(spec.Dir); err != nil || !info.IsDir() {
			if err == nil {
				err = os.ErrInvalid
			}
			return &LaunchError{Op: "resolve dir", Executable: spec.Executable, Err: err}
		}
	}
	if filepath.IsAbs(spec.Executable) {
		info, err := os.Stat(spec.Executable)
		if err != nil {
			return &LaunchError{Op: "resolve", Executable: spec.Executable, Err: err}
		}
		if info.IsDir() {
			return &LaunchError{Op: "resolve", Executable: spec.Executable, Err: os.ErrInvalid}
		}
		return nil
	}
	if _, err := exec.LookPath(spec.Executable); err != nil {
		return &LaunchError{Op: "resolve", Executable: spec.Executable, Err: err}
	}
	return nil
}
