package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/yagualauncher/yagua/internal/config"
	"github.com/yagualauncher/yagua/internal/download"
	"github.com/yagualauncher/yagua/internal/install"
	"github.com/yagualauncher/yagua/internal/integrity"
	"github.com/yagualauncher/yagua/internal/launch"
	"github.com/yagualauncher/yagua/internal/orchestrator"
	"github.com/yagualauncher/yagua/internal/profile"
	"github.com/yagualauncher/yagua/internal/reconcile"
	"github.com/yagualauncher/yagua/internal/update"
)

// app wires one installation to its download engine and orchestrator.
type app struct {
	cfg      *config.Config
	inst     *install.Installation
	engine   *download.Engine
	verifier *integrity.Verifier
	orch     *orchestrator.Orchestrator
}

func newApp(cfg *config.Config) (*app, error) {
	inst, err := install.New(cfg.InstallDir)
	if err != nil {
		return nil, err
	}
	if err := inst.Setup(); err != nil {
		return nil, err
	}
	if cfg.StagingDir != "" {
		inst.StagingDir = cfg.StagingDir
	}

	engine := download.NewEngine(newSourceMux(cfg), download.EngineConfig{
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryDelay,
	})
	verifier := integrity.NewVerifier(0)
	executor := update.NewExecutor(inst, engine, verifier, update.Config{
		Workers:  cfg.Workers,
		LockWait: cfg.LockWait,
	})

	orch := orchestrator.New(inst, engine, executor, launch.NewController(nil), verifier, orchestrator.Config{
		ManifestURL: cfg.ManifestURL,
		Reconciler: reconcile.Reconciler{
			PreferPatch: cfg.PreferPatch,
			Preserve:    cfg.Preserve,
		},
		Launch: launch.BuildOptions{
			Executable: cfg.Launch.Executable,
			Args:       cfg.Launch.Args,
			WorkDir:    cfg.Launch.WorkDir,
			EnvFile:    cfg.Launch.EnvFile,
			Env:        cfg.Launch.Env,
			Foreground: cfg.Launch.Foreground,
		},
		VerifyInstalled: cfg.VerifyInstalled,
		AllowOffline:    cfg.AllowOffline,
	})

	return &app{cfg: cfg, inst: inst, engine: engine, verifier: verifier, orch: orch}, nil
}

func newSourceMux(cfg *config.Config) *download.Mux {
	return download.NewMux().
		Handle(download.NewHTTPSource(nil), "http", "https").
		Handle(download.NewS3Source(cfg.S3), "s3").
		Handle(download.FileSource{}, "", "file")
}

// runOptions resolves the profile (selected one when name is empty) and the
// stored session.
func (a *app) runOptions(name, manifestURL string) (orchestrator.RunOptions, error) {
	store, err := profile.Load(a.cfg.ProfilesFile)
	if err != nil {
		return orchestrator.RunOptions{}, err
	}

	p := store.Selected()
	if name != "" {
		if p, err = store.Get(name); err != nil {
			return orchestrator.RunOptions{}, err
		}
	}

	session, err := profile.LoadSession(a.cfg.SessionFile)
	if errors.Is(err, profile.ErrNoSession) {
		slog.Debug("no session stored, player placeholders stay empty")
	} else if err != nil {
		return orchestrator.RunOptions{}, err
	}

	opts := orchestrator.RunOptions{Profile: p, Session: session, ManifestURL: manifestURL}
	if opts.ManifestURL == "" && p.Manifest == "" && a.cfg.ManifestURL == "" {
		return opts, config.ErrNoManifestURL
	}
	return opts, nil
}

type cycleOptions struct {
	profile string
	launch  bool
	detach  bool
}

// runCycle runs one orchestrator cycle and reports its events on the log.
func runCycle(ctx context.Context, cfg *config.Config, opts cycleOptions) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	runOpts, err := a.runOptions(opts.profile, "")
	if err != nil {
		return err
	}
	runOpts.Launch = opts.launch
	runOpts.Wait = opts.launch && !opts.detach

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reportEvents(a.orch.Events())
	}()

	res, err := a.orch.Run(ctx, runOpts)
	a.orch.Close()
	wg.Wait()

	var partial *update.PartialUpdateError
	if errors.As(err, &partial) {
		slog.Error("update stopped part way, run again to finish", "remaining", len(partial.Remaining))
	}
	if err != nil {
		return err
	}

	slog.Info("yagua done", "result", res.String())
	if res.ExitCode != nil && *res.ExitCode != 0 {
		return &appExitError{code: *res.ExitCode}
	}
	return nil
}

func reportEvents(events <-chan orchestrator.Event) {
	for e := range events {
		switch e.Type {
		case orchestrator.EventStateChanged:
			slog.Debug("state", "from", e.From, "to", e.To)
		case orchestrator.EventManifestFetched:
			slog.Info("manifest", "version", e.Version, "files", e.Files)
		case orchestrator.EventPlanComputed:
			if e.Counts != nil {
				slog.Info("plan", "add", e.Counts.Add, "replace", e.Counts.Replace, "patch", e.Counts.Patch, "delete", e.Counts.Delete)
			}
		case orchestrator.EventFileProgress:
			if e.BytesTotal > 0 && e.BytesDone == e.BytesTotal {
				slog.Info("downloaded", "path", e.Path, "size", humanize.IBytes(uint64(e.BytesTotal)))
			}
		case orchestrator.EventUpdateCommitted:
			slog.Info("update committed", "version", e.Version)
		case orchestrator.EventLaunchStarted:
			slog.Info("launched", "pid", e.PID)
		case orchestrator.EventLaunchExited:
			if e.ExitCode != nil {
				slog.Info("application exited", "pid", e.PID, "code", *e.ExitCode)
			}
		case orchestrator.EventError:
			slog.Warn("run error", "kind", e.Kind, "error", e.Message)
		}
	}
}

type appExitError struct {
	code int
}

func (e *appExitError) Error() string {
	return fmt.Sprintf("application exited with code %d", e.code)
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var appErr *appExitError
	if errors.As(err, &appErr) {
		return appErr.code
	}
	switch orchestrator.Kind(err) {
	case orchestrator.KindCancelled:
		return 130
	case orchestrator.KindPartialUpdate:
		return 3
	case orchestrator.KindConcurrentUpdate:
		return 4
	}
	return 1
}
