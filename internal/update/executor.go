// Package update applies an update plan to an installation: every changed file
// is staged and verified first, then committed into place by a single writer.
package update

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yagualauncher/yagua/internal/download"
	"github.com/yagualauncher/yagua/internal/install"
	"github.com/yagualauncher/yagua/internal/integrity"
	"github.com/yagualauncher/yagua/internal/manifest"
	"github.com/yagualauncher/yagua/internal/queue"
	"github.com/yagualauncher/yagua/internal/reconcile"
	"github.com/yagualauncher/yagua/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	AutoDetectWorkers = 0
	DefaultWorkers    = 4
)

type Config struct {
	// Workers bounds concurrent downloads. AutoDetectWorkers uses the CPU count.
	Workers int
	// LockWait is how long to wait for another updater. Zero fails fast.
	LockWait time.Duration
}

// EntryStateFunc observes entry transitions. It is called from worker
// goroutines and must be safe for concurrent use.
type EntryStateFunc func(path string, state EntryState, err error)

// ProgressFunc observes download progress per path. Same concurrency rules as EntryStateFunc.
type ProgressFunc func(path string, bytesDone, bytesTotal int64)

type Executor struct {
	inst     *install.Installation
	engine   *download.Engine
	verifier *integrity.Verifier
	workers  int
	lockWait time.Duration

	OnEntryState EntryStateFunc
	OnProgress   ProgressFunc
}

func NewExecutor(inst *install.Installation, engine *download.Engine, verifier *integrity.Verifier, cfg Config) *Executor {
	workers := cfg.Workers
	if workers <= AutoDetectWorkers {
		workers = runtime.NumCPU()
	}
	if verifier == nil {
		verifier = integrity.NewVerifier(0)
	}
	return &Executor{
		inst:     inst,
		engine:   engine,
		verifier: verifier,
		workers:  workers,
		lockWait: cfg.LockWait,
	}
}

// Execute stages and commits plan. The live installation is only touched once
// every entry is staged and verified. A failure or cancellation while staging
// removes stagingDir and leaves the installation and its state as they were.
// A failure while committing returns *PartialUpdateError.
func (x *Executor) Execute(ctx context.Context, plan reconcile.UpdatePlan, m *manifest.RemoteManifest, stagingDir string) error {
	if stagingDir == "" {
		stagingDir = x.inst.StagingDir
	}
	if err := x.inst.CheckStaging(stagingDir); err != nil {
		return err
	}

	if err := x.inst.LockWait(ctx, x.lockWait); err != nil {
		return err
	}
	defer x.inst.Unlock()

	state, err := x.inst.LoadState()
	if errors.Is(err, manifest.ErrCorruptState) {
		slog.Warn("update local state unreadable, rebuilding", "error", err)
		state = manifest.NewLocalState()
	} else if err != nil {
		return err
	}

	counts := plan.Counts()
	slog.Info("update start", "version", m.Version, "add", counts.Add, "replace", counts.Replace,
		"patch", counts.Patch, "delete", counts.Delete, "download", humanize.Bytes(uint64(plan.DownloadSize())))

	for _, pe := range plan {
		x.setState(pe.Path, Pending, nil)
	}

	start := time.Now()
	if err := x.stage(ctx, plan, m, stagingDir); err != nil {
		if rmErr := os.RemoveAll(stagingDir); rmErr != nil {
			slog.Warn("update discard staging", "dir", stagingDir, "error", rmErr)
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		os.RemoveAll(stagingDir)
		return err
	}
	slog.Info("update staged", "entries", len(plan), "took", time.Since(start))

	if err := x.commit(plan, m, state, stagingDir); err != nil {
		return err
	}

	if err := os.RemoveAll(stagingDir); err != nil {
		slog.Warn("update cleanup staging", "dir", stagingDir, "error", err)
	}
	slog.Info("update committed", "version", m.Version, "took", time.Since(start))
	return nil
}

// ExecuteRemaining resumes after a *PartialUpdateError.
func (x *Executor) ExecuteRemaining(ctx context.Context, perr *PartialUpdateError, m *manifest.RemoteManifest, stagingDir string) error {
	return x.Execute(ctx, perr.Remaining, m, stagingDir)
}

// stage downloads every non-delete entry, smallest first, with a bounded pool.
func (x *Executor) stage(ctx context.Context, plan reconcile.UpdatePlan, m *manifest.RemoteManifest, stagingDir string) error {
	pq := queue.NewPriorityQueue[reconcile.PlanEntry]()
	for _, pe := range plan {
		switch pe.Action {
		case reconcile.Delete:
			continue
		case reconcile.Patch:
			pq.Enqueue(pe, pe.Entry.Patch.Size)
		default:
			pq.Enqueue(pe, pe.Entry.Size)
		}
	}
	if pq.Len() == 0 {
		return nil
	}

	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("update: create staging: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)

	for _, pe := range pq.Drain() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := x.stageEntry(gctx, m, pe, stagingDir); err != nil {
				x.setState(pe.Path, Failed, err)
				return &EntryError{Path: pe.Path, Err: err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return ctx.Err()
}

func (x *Executor) stageEntry(ctx context.Context, m *manifest.RemoteManifest, pe reconcile.PlanEntry, stagingDir string) error {
	entry := pe.Entry
	dst := install.StagedPath(stagingDir, pe.Path)

	if utils.FileExists(dst) {
		if ok, _ := integrity.Verify(dst, entry.Checksum, entry.Algo); ok {
			slog.Debug("update reuse staged", "path", pe.Path)
			x.setState(pe.Path, Verifying, nil)
			return nil
		}
		os.Remove(dst)
	}

	if pe.Action == reconcile.Patch {
		err := x.stagePatch(ctx, m, pe, dst)
		if err == nil || ctx.Err() != nil {
			return err
		}
		slog.Warn("update patch failed, downloading full file", "path", pe.Path, "error", err)
	}

	// a corrupt transfer gets one more full download
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		err = x.downloadAndVerify(ctx, m, pe, dst)
		if err == nil || !isContentMismatch(err) {
			return err
		}
		slog.Warn("update content mismatch", "path", pe.Path, "attempt", attempt, "error", err)
		os.Remove(dst)
	}
	return err
}

func (x *Executor) downloadAndVerify(ctx context.Context, m *manifest.RemoteManifest, pe reconcile.PlanEntry, dst string) error {
	x.setState(pe.Path, Downloading, nil)
	task := &download.Task{
		URL:              m.URLFor(pe.Entry),
		Dest:             dst,
		ExpectedSize:     pe.Entry.Size,
		ExpectedChecksum: pe.Entry.Checksum,
	}
	if err := x.engine.Download(ctx, task, x.progressFor(pe.Path)); err != nil {
		return err
	}

	x.setState(pe.Path, Verifying, nil)
	return integrity.Check(dst, pe.Entry.Checksum, pe.Entry.Algo)
}

// commit moves staged files live in plan order, then applies deletions, then
// persists the state. It never runs concurrently with itself.
func (x *Executor) commit(plan reconcile.UpdatePlan, m *manifest.RemoteManifest, state *manifest.LocalInstallState, stagingDir string) error {
	next := state.Clone()

	fail := func(i int, err error) error {
		slog.Error("update commit failed", "path", plan[i].Path, "remaining", len(plan)-i, "error", err)
		x.setState(plan[i].Path, Failed, err)
		if saveErr := x.inst.SaveState(next); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
		return &PartialUpdateError{Remaining: plan[i:], Err: err}
	}

	for i, pe := range plan {
		if pe.Action == reconcile.Delete {
			continue
		}
		live := x.inst.Path(pe.Path)
		if err := utils.MoveFile(install.StagedPath(stagingDir, pe.Path), live); err != nil {
			return fail(i, err)
		}
		x.verifier.Forget(live)
		if err := integrity.Check(live, pe.Entry.Checksum, pe.Entry.Algo); err != nil {
			// the live file no longer matches its record
			delete(next.Files, pe.Path)
			return fail(i, err)
		}
		next.Files[pe.Path] = manifest.FromEntry(pe.Entry, time.Now().UTC())
		x.setState(pe.Path, Committed, nil)
	}

	for i, pe := range plan {
		if pe.Action != reconcile.Delete {
			continue
		}
		if err := x.removeLive(pe.Path); err != nil {
			return fail(i, err)
		}
		delete(next.Files, pe.Path)
		x.setState(pe.Path, Committed, nil)
	}

	next.ManifestVersion = m.Version
	if err := x.inst.SaveState(next); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// removeLive deletes a file and any directories it leaves empty.
func (x *Executor) removeLive(rel string) error {
	path := x.inst.Path(rel)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	x.verifier.Forget(path)

	for dir := filepath.Dir(path); dir != x.inst.Root && len(dir) > len(x.inst.Root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

func (x *Executor) setState(path string, s EntryState, err error) {
	if err != nil {
		slog.Debug("update entry", "path", path, "state", s, "error", err)
	} else {
		slog.Debug("update entry", "path", path, "state", s)
	}
	if x.OnEntryState != nil {
		x.OnEntryState(path, s, err)
	}
}

func (x *Executor) progressFor(path string) download.ProgressFunc {
	if x.OnProgress == nil {
		return nil
	}
	return func(done, total int64) {
		x.OnProgress(path, done, total)
	}
}

func isContentMismatch(err error) bool {
	var sumErr *integrity.ChecksumMismatchError
	var sizeErr *download.SizeMismatchError
	return errors.As(err, &sumErr) || errors.As(err, &sizeErr)
}
