// Package install describes the on-disk layout of an installation and guards
// it against concurrent updaters.
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/yagualauncher/yagua/internal/manifest"
	"github.com/yagualauncher/yagua/internal/utils"
)

const (
	stagingDir    = "staging"
	logsDir       = "logs"
	stateFile     = "state.json"
	manifestCache = "manifest.json"
	lockFile      = "yagua.lock"

	lockRetryDelay = 250 * time.Millisecond
)

var (
	ErrConcurrentUpdate = errors.New("install: another update is in progress")
	ErrInvalidStaging   = errors.New("install: staging dir overlaps the installation")
)

// Installation is the layout of one installed application. Launcher
// bookkeeping lives under Root/.yagua.
type Installation struct {
	Root          string
	MetaDir       string
	StagingDir    string
	StateFile     string
	ManifestCache string
	LogsDir       string

	flock *flock.Flock
}

func New(rootDir string) (*Installation, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("install: resolve %s: %w", rootDir, err)
	}

	meta := filepath.Join(root, manifest.MetaDirName)
	return &Installation{
		Root:          root,
		MetaDir:       meta,
		StagingDir:    filepath.Join(meta, stagingDir),
		StateFile:     filepath.Join(meta, stateFile),
		ManifestCache: filepath.Join(meta, manifestCache),
		LogsDir:       filepath.Join(meta, logsDir),
		flock:         flock.New(filepath.Join(meta, lockFile)),
	}, nil
}

// Setup creates the bookkeeping directories.
func (i *Installation) Setup() error {
	for _, dir := range []string{i.Root, i.MetaDir, i.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("install: create %s: %w", dir, err)
		}
	}
	return nil
}

// Path maps a manifest path to its live location.
func (i *Installation) Path(rel string) string {
	return utils.JoinRel(i.Root, rel)
}

// StagedPath maps a manifest path into a staging directory.
func StagedPath(staging, rel string) string {
	return utils.JoinRel(staging, rel)
}

// CheckStaging rejects a staging dir that is the root itself or lies in the
// live tree outside the reserved meta dir.
func (i *Installation) CheckStaging(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStaging, err)
	}
	if within(abs, i.Root) && !within(abs, i.MetaDir) {
		return fmt.Errorf("%w: %s", ErrInvalidStaging, abs)
	}
	if within(i.Root, abs) {
		return fmt.Errorf("%w: %s contains the installation", ErrInvalidStaging, abs)
	}
	return nil
}

// within reports whether path equals dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Lock takes the install lock without waiting.
func (i *Installation) Lock() error {
	if err := utils.EnsureDir(i.MetaDir); err != nil {
		return fmt.Errorf("install: create %s: %w", i.MetaDir, err)
	}

	locked, err := i.flock.TryLock()
	if err != nil {
		return fmt.Errorf("install: lock: %w", err)
	}
	if !locked {
		return ErrConcurrentUpdate
	}
	return nil
}

// LockWait takes the install lock, waiting up to wait for another holder to
// release it. A zero wait behaves like Lock.
func (i *Installation) LockWait(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return i.Lock()
	}
	if err := utils.EnsureDir(i.MetaDir); err != nil {
		return fmt.Errorf("install: create %s: %w", i.MetaDir, err)
	}

	slog.Debug("install lock wait", "path", i.flock.Path(), "timeout", wait)
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	locked, err := i.flock.TryLockContext(waitCtx, lockRetryDelay)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if !locked {
		return ErrConcurrentUpdate
	}
	return nil
}

// Unlock releases the lock if this Installation holds it. The lock file is
// left in place so that waiters keep contending on the same inode.
func (i *Installation) Unlock() error {
	if !i.flock.Locked() {
		return nil
	}
	if err := i.flock.Unlock(); err != nil {
		return fmt.Errorf("install: unlock: %w", err)
	}
	return nil
}

func (i *Installation) LoadState() (*manifest.LocalInstallState, error) {
	return manifest.LoadLocalState(i.StateFile)
}

func (i *Installation) SaveState(s *manifest.LocalInstallState) error {
	return manifest.SaveLocalState(s, i.StateFile)
}
