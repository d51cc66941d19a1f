package launch

import (
	"context"
	"log/slog"
)

// Platform is the OS specific part of launching. Exactly one implementation is
// compiled in; see NativePlatform.
type Platform interface {
	Launch(ctx context.Context, spec Spec) (*Process, error)
	BringToForeground(p *Process) error
	WaitForExit(ctx context.Context, p *Process) (int, error)
}

// NativePlatform returns the implementation for the build target.
func NativePlatform() Platform {
	return nativePlatform{}
}

type nativePlatform struct{}

func (nativePlatform) Launch(ctx context.Context, spec Spec) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Op: "start", Executable: spec.Executable, Err: err}
	}
	p, err := startProcess(spec, sysProcAttr())
	if err != nil {
		return nil, err
	}
	slog.Info("app started", "app", p.ID, "pid", p.PID(), "exe", spec.Executable, "dir", spec.Dir)
	return p, nil
}

func (nativePlatform) BringToForeground(p *Process) error {
	if !p.Running() {
		return ErrNotRunning
	}
	return bringToForeground(p.PID())
}

func (nativePlatform) WaitForExit(ctx context.Context, p *Process) (int, error) {
	return p.Wait(ctx)
}
