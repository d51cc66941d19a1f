package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildVars(t *testing.T, version, revision, buildDate string) {
	t.Helper()
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})
	Version, Revision, BuildDate = version, revision, buildDate
}

func TestApplyBuildInfo(t *testing.T) {
	tests := []struct {
		name                           string
		version, revision, buildDate   string
		mainVersion                    string
		settings                       map[string]string
		wantVersion, wantRev, wantDate string
	}{
		{
			name:    "dev build takes module and vcs data",
			version: devVersion, revision: "HEAD",
			mainVersion: "v2.4.0",
			settings:    map[string]string{"vcs.revision": "5e23a4", "vcs.modified": "true", "vcs.time": "2026-03-01T10:00:00Z"},
			wantVersion: "2.4.0", wantRev: "5e23a4-dirty", wantDate: "2026-03-01T10:00:00Z",
		},
		{
			name:    "devel module keeps dev version",
			version: devVersion, revision: "HEAD",
			mainVersion: "(devel)",
			settings:    map[string]string{"vcs.revision": "77aa01"},
			wantVersion: devVersion, wantRev: "77aa01",
		},
		{
			name:    "ldflags win",
			version: "1.2.3", revision: "deadbeef", buildDate: "2026-01-01T00:00:00Z",
			mainVersion: "v9.9.9",
			settings:    map[string]string{"vcs.revision": "abcdef", "vcs.time": "2026-12-12T01:00:00Z"},
			wantVersion: "1.2.3", wantRev: "deadbeef", wantDate: "2026-01-01T00:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuildVars(t, tt.version, tt.revision, tt.buildDate)
			applyBuildInfo(tt.mainVersion, tt.settings)
			assert.Equal(t, tt.wantVersion, Version)
			assert.Equal(t, tt.wantRev, Revision)
			assert.Equal(t, tt.wantDate, BuildDate)
		})
	}
}

func TestVersionStrings(t *testing.T) {
	withBuildVars(t, "2.4.0", "5e23a4", "2026-03-01T10:00:00Z")

	assert.Equal(t, "2.4.0 (5e23a4)", Short())
	assert.Equal(t, "YaguaLauncher 2.4.0 (5e23a4)", ShortWithApp())
	assert.True(t, strings.HasPrefix(Detailed(), "2.4.0 (5e23a4; go"))
	assert.True(t, strings.HasSuffix(Detailed(), "; 2026-03-01T10:00:00Z)"))
	assert.True(t, strings.HasPrefix(DetailedWithApp(), "YaguaLauncher 2.4.0 "))
	assert.True(t, strings.HasPrefix(UserAgent(), "YaguaLauncher/2.4.0 (5e23a4; "))

	info := Current()
	assert.Equal(t, "YaguaLauncher", info.App)
	assert.Equal(t, "2.4.0", info.Version)
	assert.Contains(t, info.Platform, "/")
}
