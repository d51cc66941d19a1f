package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/yagualauncher/yagua/internal/utils"
)

const stopGracePeriod = 3 * time.Second

// Process is a started application and its descendants.
type Process struct {
	ID  string
	Exe string

	cmd  *exec.Cmd
	info *process.Process

	stdout *utils.LineLogger
	stderr *utils.LineLogger

	done chan struct{}
	code int
	err  error
}

func startProcess(spec Spec, attr *syscall.SysProcAttr) (*Process, error) {
	p := &Process{
		ID:   utils.TokenHex(3),
		Exe:  spec.Executable,
		done: make(chan struct{}),
	}

	logger := slog.With("app", p.ID)
	p.stdout = utils.NewLineLogger(logger, slog.LevelInfo, "app stdout")
	p.stderr = utils.NewLineLogger(logger, slog.LevelWarn, "app stderr")

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Environ()
	cmd.SysProcAttr = attr
	cmd.Stdin = nil
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Op: "start", Executable: spec.Executable, Err: err}
	}
	p.cmd = cmd

	info, err := process.NewProcess(int32(cmd.Process.Pid))
	if err != nil {
		// the process may already be gone; exit status still comes from monitor
		slog.Debug("launch process info", "pid", cmd.Process.Pid, "error", err)
	}
	p.info = info

	go p.monitor()
	return p, nil
}

func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Running reports whether the process has not exited yet.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
	}
	if p.info == nil {
		return true
	}
	running, err := p.info.IsRunning()
	return err != nil || running
}

// Wait blocks until exit or ctx is done. A non-zero exit status is reported as
// the code, not as an error.
func (p *Process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.code, p.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (p *Process) monitor() {
	err := p.cmd.Wait()
	code := p.cmd.ProcessState.ExitCode()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
		err = nil
	}
	if err != nil {
		err = &LaunchError{Op: "wait", Executable: p.Exe, Err: err}
	}

	p.stdout.Close()
	p.stderr.Close()

	p.code, p.err = code, err
	close(p.done)
	slog.Info("app exited", "app", p.ID, "pid", p.cmd.Process.Pid, "code", code)
}

// Stop terminates the process tree bottom up, escalating to kill after a grace period.
func (p *Process) Stop() error {
	if !p.Running() {
		return ErrNotRunning
	}
	if p.info == nil {
		return p.cmd.Process.Kill()
	}

	tree, err := processTreeBottomUp(p.info)
	if err != nil {
		tree = []*process.Process{p.info}
	}

	slog.Debug("stop process tree: terminate", "app", p.ID, "pid", p.PID(), "procs", len(tree))
	for _, proc := range tree {
		if err := proc.Terminate(); err != nil {
			slog.Debug("stop process tree: terminate", "app", p.ID, "pid", proc.Pid, "error", err)
		}
	}

	timer := time.NewTimer(stopGracePeriod)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	slog.Debug("stop process tree: kill", "app", p.ID, "pid", p.PID())
	for _, proc := range tree {
		if exists, err := process.PidExists(proc.Pid); err != nil || !exists {
			continue
		}
		if err := proc.Kill(); err != nil {
			slog.Warn("stop process tree: kill", "app", p.ID, "pid", proc.Pid, "error", err)
		}
	}
	<-p.done
	return nil
}

// processTreeBottomUp lists proc and its descendants, children before parents.
func processTreeBottomUp(proc *process.Process) ([]*process.Process, error) {
	children, err := proc.Children()
	if err != nil && !errors.Is(err, process.ErrorNoChildren) {
		return nil, fmt.Errorf("list children of %d: %w", proc.Pid, err)
	}

	var tree []*process.Process
	for _, child := range children {
		sub, _ := processTreeBottomUp(child)
		tree = append(tree, sub...)
	}
	return append(tree, proc), nil
}
