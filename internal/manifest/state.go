package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/yagualauncher/yagua/internal/integrity"
	"github.com/yagualauncher/yagua/internal/utils"
)

// LocalInstallState records what is installed. Only the update executor writes
// it, and only after a file has been verified in its live location.
type LocalInstallState struct {
	ManifestVersion string               `json:"manifestVersion"`
	Files           map[string]LocalFile `json:"files"`
}

type LocalFile struct {
	Size         int64          `json:"size"`
	Checksum     string         `json:"checksum"`
	Algo         integrity.Algo `json:"algo"`
	LastVerified time.Time      `json:"lastVerified"`
}

// NewLocalState returns an empty state, the state of a fresh install.
func NewLocalState() *LocalInstallState {
	return &LocalInstallState{Files: make(map[string]LocalFile)}
}

// Clone returns a deep copy.
func (s *LocalInstallState) Clone() *LocalInstallState {
	c := &LocalInstallState{
		ManifestVersion: s.ManifestVersion,
		Files:           make(map[string]LocalFile, len(s.Files)),
	}
	for k, v := range s.Files {
		c.Files[k] = v
	}
	return c
}

// Paths returns tracked paths in sorted order.
func (s *LocalInstallState) Paths() []string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Matches reports whether the recorded file is identical to the manifest entry.
func (f LocalFile) Matches(e *FileEntry) bool {
	return f.Size == e.Size && f.Algo.String() == e.Algo.String() && integrity.Equal(f.Checksum, e.Checksum)
}

// FromEntry is the record of a freshly verified entry.
func FromEntry(e *FileEntry, verified time.Time) LocalFile {
	return LocalFile{Size: e.Size, Checksum: e.Checksum, Algo: e.Algo, LastVerified: verified}
}

// LoadLocalState reads the state file. A missing file yields an empty state and
// no error. A file that exists but does not decode yields ErrCorruptState.
func LoadLocalState(path string) (*LocalInstallState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewLocalState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: load state: %w", err)
	}

	state := NewLocalState()
	if err := utils.JSONUnmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, path, err)
	}
	if state.Files == nil {
		state.Files = make(map[string]LocalFile)
	}
	for p := range state.Files {
		if _, err := utils.SafeRelPath(p); err != nil {
			return nil, fmt.Errorf("%w: %s: unsafe path %q", ErrCorruptState, path, p)
		}
	}
	return state, nil
}

// SaveLocalState writes the state atomically; a crash mid-write keeps the
// previous file intact.
func SaveLocalState(state *LocalInstallState, path string) error {
	data, err := utils.JSONMarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encode state: %w", err)
	}
	if err := utils.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("manifest: save state: %w", err)
	}
	return nil
}

// SaveManifestCache keeps the last fetched manifest for offline use.
func SaveManifestCache(m *RemoteManifest, path string) error {
	data, err := Marshal(m)
	if err != nil {
		return fmt.Errorf("manifest: encode cache: %w", err)
	}
	if err := utils.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("manifest: save cache: %w", err)
	}
	return nil
}

// LoadManifestCache returns the cached manifest or ErrNoCachedManifest.
func LoadManifestCache(path string) (*RemoteManifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoCachedManifest
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: load cache: %w", err)
	}
	return Parse(data)
}
