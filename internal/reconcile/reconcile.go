package reconcile

import (
	"log/slog"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/yagualauncher/yagua/internal/manifest"
)

// PlanEntry is one change. Entry is nil for Delete.
type PlanEntry struct {
	Path   string              `json:"path" yaml:"path"`
	Action Action              `json:"action" yaml:"action"`
	Entry  *manifest.FileEntry `json:"-" yaml:"-"`
}

// UpdatePlan is ordered: adds, replaces and patches in manifest order, then
// deletes sorted by path. It is derived and never persisted.
type UpdatePlan []PlanEntry

type Counts struct {
	Add     int `json:"add" yaml:"add"`
	Replace int `json:"replace" yaml:"replace"`
	Patch   int `json:"patch" yaml:"patch"`
	Delete  int `json:"delete" yaml:"delete"`
}

func (c Counts) Total() int {
	return c.Add + c.Replace + c.Patch + c.Delete
}

func (p UpdatePlan) Counts() Counts {
	var c Counts
	for _, e := range p {
		switch e.Action {
		case Add:
			c.Add++
		case Replace:
			c.Replace++
		case Patch:
			c.Patch++
		case Delete:
			c.Delete++
		}
	}
	return c
}

// Empty means the installation is up to date.
func (p UpdatePlan) Empty() bool {
	return len(p) == 0
}

// DownloadSize is the number of bytes the plan transfers, counting patches at
// their patch size.
func (p UpdatePlan) DownloadSize() int64 {
	var total int64
	for _, e := range p {
		switch e.Action {
		case Add, Replace:
			total += e.Entry.Size
		case Patch:
			total += e.Entry.Patch.Size
		}
	}
	return total
}

// Reconciler holds the planning policy.
type Reconciler struct {
	// PreferPatch plans Patch for changed files that carry a patch smaller than the file.
	PreferPatch bool
	// Preserve lists doublestar globs of untracked or user files that are never deleted.
	Preserve []string
}

// Plan computes the update plan with the default policy: full replacement and
// nothing preserved.
func Plan(m *manifest.RemoteManifest, local *manifest.LocalInstallState) UpdatePlan {
	return Reconciler{}.Plan(m, local)
}

func (r Reconciler) Plan(m *manifest.RemoteManifest, local *manifest.LocalInstallState) UpdatePlan {
	if local == nil {
		local = manifest.NewLocalState()
	}

	plan := make(UpdatePlan, 0)
	wanted := mapset.NewThreadUnsafeSetWithSize[string](len(m.Files))

	for i := range m.Files {
		entry := &m.Files[i]
		wanted.Add(entry.Path)

		installed, ok := local.Files[entry.Path]
		switch {
		case !ok:
			plan = append(plan, PlanEntry{Path: entry.Path, Action: Add, Entry: entry})
		case installed.Matches(entry):
			continue
		case r.PreferPatch && entry.Patch != nil && entry.Patch.Size < entry.Size:
			plan = append(plan, PlanEntry{Path: entry.Path, Action: Patch, Entry: entry})
		default:
			plan = append(plan, PlanEntry{Path: entry.Path, Action: Replace, Entry: entry})
		}
	}

	installed := mapset.NewThreadUnsafeSetWithSize[string](len(local.Files))
	for path := range local.Files {
		installed.Add(path)
	}
	stale := installed.Difference(wanted).ToSlice()
	sort.Strings(stale)

	for _, path := range stale {
		if r.preserved(path) {
			slog.Debug("reconcile keep preserved", "path", path)
			continue
		}
		plan = append(plan, PlanEntry{Path: path, Action: Delete})
	}
	return plan
}

func (r Reconciler) preserved(path string) bool {
	for _, pattern := range r.Preserve {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// Apply projects the local state a fully successful execution of plan produces.
// Preserved paths stay tracked.
func Apply(plan UpdatePlan, m *manifest.RemoteManifest, local *manifest.LocalInstallState) *manifest.LocalInstallState {
	next := manifest.NewLocalState()
	if local != nil {
		next = local.Clone()
	}
	now := time.Now().UTC()
	for _, e := range plan {
		switch e.Action {
		case Delete:
			delete(next.Files, e.Path)
		default:
			next.Files[e.Path] = manifest.FromEntry(e.Entry, now)
		}
	}
	if m != nil {
		next.ManifestVersion = m.Version
	}
	return next
}
