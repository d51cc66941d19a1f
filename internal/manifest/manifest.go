// Package manifest models the remote distribution manifest and the local
// install state it is reconciled against.
package manifest

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/yagualauncher/yagua/internal/integrity"
	"github.com/yagualauncher/yagua/internal/utils"
)

// MetaDirName is reserved for launcher bookkeeping inside an installation.
// Manifest paths may not point into it.
const MetaDirName = ".yagua"

// RemoteManifest is the authoritative description of a distribution version.
// It is not modified after Parse.
type RemoteManifest struct {
	Version string
	BaseURL string
	Files   []FileEntry
}

type FileEntry struct {
	Path     string
	Size     int64
	Checksum string
	Algo     integrity.Algo
	// URL overrides BaseURL + Path when set.
	URL   string
	Patch *PatchRef
}

// PatchRef is an optional binary delta from the previous version of a file.
type PatchRef struct {
	URL      string
	Size     int64
	Checksum string
	Algo     integrity.Algo
}

// Lookup returns the entry for path.
func (m *RemoteManifest) Lookup(path string) (*FileEntry, bool) {
	for i := range m.Files {
		if m.Files[i].Path == path {
			return &m.Files[i], true
		}
	}
	return nil, false
}

// TotalSize is the sum of all entry sizes.
func (m *RemoteManifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// URLFor resolves the download URL of an entry.
func (m *RemoteManifest) URLFor(e *FileEntry) string {
	if e.URL != "" {
		return m.resolve(e.URL)
	}
	return joinURL(m.BaseURL, escapePath(e.Path))
}

// PatchURLFor resolves the download URL of an entry's patch.
func (m *RemoteManifest) PatchURLFor(e *FileEntry) string {
	if e.Patch == nil {
		return ""
	}
	return m.resolve(e.Patch.URL)
}

// resolve makes relative entry URLs relative to BaseURL.
func (m *RemoteManifest) resolve(ref string) string {
	if m.BaseURL == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() || strings.HasPrefix(ref, "/") {
		return ref
	}
	return joinURL(m.BaseURL, ref)
}

func joinURL(base, rel string) string {
	if base == "" {
		return rel
	}
	return strings.TrimRight(base, "/") + "/" + rel
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func validateEntry(i int, e *FileEntry, seen map[string]struct{}) error {
	norm, err := utils.SafeRelPath(e.Path)
	if err != nil {
		return &ParseError{Index: i, Path: e.Path, Reason: "invalid path", Err: err}
	}
	if norm == MetaDirName || strings.HasPrefix(norm, MetaDirName+"/") {
		return &ParseError{Index: i, Path: e.Path, Reason: "path is inside the reserved " + MetaDirName + " directory"}
	}
	e.Path = norm

	if _, dup := seen[norm]; dup {
		return &ParseError{Index: i, Path: e.Path, Reason: "duplicate path"}
	}
	seen[norm] = struct{}{}

	if e.Size < 0 {
		return &ParseError{Index: i, Path: e.Path, Reason: "negative size " + strconv.FormatInt(e.Size, 10)}
	}
	if e.Checksum == "" {
		return &ParseError{Index: i, Path: e.Path, Reason: "missing checksum"}
	}
	if !e.Algo.ValidHex(e.Checksum) {
		return &ParseError{Index: i, Path: e.Path, Reason: "checksum is not a valid " + e.Algo.String() + " digest"}
	}
	e.Checksum = strings.ToLower(e.Checksum)

	if p := e.Patch; p != nil {
		if p.URL == "" || p.Size < 0 || !p.Algo.ValidHex(p.Checksum) {
			return &ParseError{Index: i, Path: e.Path, Reason: "invalid patch reference"}
		}
		p.Checksum = strings.ToLower(p.Checksum)
	}
	return nil
}
