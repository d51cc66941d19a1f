package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yagualauncher/yagua/internal/config"
	"github.com/yagualauncher/yagua/internal/orchestrator"
	"github.com/yagualauncher/yagua/internal/update"
	"github.com/yagualauncher/yagua/internal/version"
)

const helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

type testEnv struct {
	dir        string
	configPath string
	installDir string
	manifest   string
}

// newTestEnv writes a config and a local distribution serving app.bin.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.json"),
		installDir: filepath.Join(dir, "game"),
		manifest:   filepath.Join(dir, "dist", "manifest.json"),
	}

	dist := filepath.Join(dir, "dist")
	require.NoError(t, os.MkdirAll(dist, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "app.bin"), []byte("hello"), 0644))
	env.writeManifest(t, "1.0.0", `{"path":"app.bin","size":5,"sha256":"`+helloSHA256+`"}`)

	cfg := map[string]any{
		"install_dir":   env.installDir,
		"manifest_url":  env.manifest,
		"profiles_file": filepath.Join(dir, "profiles.json"),
		"session_file":  filepath.Join(dir, "session.json"),
		"max_retries":   0,
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(env.configPath, data, 0644))
	return env
}

func (e *testEnv) writeManifest(t *testing.T, version string, entries ...string) {
	t.Helper()
	dist := filepath.Dir(e.manifest)
	m := `{"version":"` + version + `","baseUrl":` + quote(dist) + `,"files":[` + strings.Join(entries, ",") + `]}`
	require.NoError(t, os.WriteFile(e.manifest, []byte(m), 0644))
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.DetailedWithApp(), strings.TrimSpace(out))
}

func TestConfigFrom_FileFlagsAndEnv(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("YAGUA_CONTROL_PLANE_ADDR", "127.0.0.1:9999")

	v := viper.New()
	root := newRootCmdWithViper(v)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", env.configPath, "--workers", "7", "version"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	cfg, err := configFrom(v)
	require.NoError(t, err)
	assert.Equal(t, env.installDir, cfg.InstallDir)
	assert.Equal(t, env.manifest, cfg.ManifestURL)
	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, "127.0.0.1:9999", cfg.ControlPlane.Addr)
	assert.Equal(t, env.configPath, cfg.Path)
}

func TestUpdateVerifyPlan(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "(none) -> 1.0.0")
	assert.Contains(t, out, "add")
	assert.Contains(t, out, "app.bin")

	_, err = env.run(t, "update")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(env.installDir, "app.bin"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	out, err = env.run(t, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "verified 1 files")
	assert.Contains(t, out, "1.0.0")

	out, err = env.run(t, "plan", "--format", "json")
	require.NoError(t, err)
	var report planReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "1.0.0", report.Version)
	assert.Equal(t, "1.0.0", report.Installed)
	assert.Empty(t, report.Entries)

	out, err = env.run(t, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "up to date at version 1.0.0")
}

func TestVerify_DetectsAndRepairsCorruption(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "update")
	require.NoError(t, err)

	live := filepath.Join(env.installDir, "app.bin")
	require.NoError(t, os.WriteFile(live, []byte("HELLO"), 0644))

	out, err := env.run(t, "verify")
	require.Error(t, err)
	assert.Contains(t, out, "corrupt  app.bin")

	_, err = env.run(t, "verify", "--repair")
	require.NoError(t, err)
	data, err := os.ReadFile(live)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestPlan_YAMLListsDeletes(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "update")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(env.manifest), "new.bin"), []byte("hello"), 0644))
	env.writeManifest(t, "2.0.0", `{"path":"new.bin","size":5,"sha256":"`+helloSHA256+`"}`)

	out, err := env.run(t, "plan", "-f", "yaml")
	require.NoError(t, err)

	var report struct {
		Version string `yaml:"version"`
		Entries []struct {
			Path   string `yaml:"path"`
			Action string `yaml:"action"`
		} `yaml:"entries"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, "2.0.0", report.Version)
	require.Len(t, report.Entries, 2)
	assert.Equal(t, "new.bin", report.Entries[0].Path)
	assert.Equal(t, "add", report.Entries[0].Action)
	assert.Equal(t, "app.bin", report.Entries[1].Path)
	assert.Equal(t, "delete", report.Entries[1].Action)

	_, err = env.run(t, "plan", "--format", "xml")
	assert.Error(t, err)
}

func TestUpdate_MissingManifestURL(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte(`{"install_dir":`+quote(env.installDir)+`,"profiles_file":`+quote(filepath.Join(env.dir, "p.json"))+`}`), 0644))

	_, err := env.run(t, "update")
	assert.ErrorIs(t, err, config.ErrNoManifestURL)
}

func TestProfileCommands(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "profile", "add", "modded", "--memory", "4096", "--arg", "--fullscreen", "--env", "MODS=on", "--select")
	require.NoError(t, err)
	assert.Contains(t, out, "saved profile modded")

	_, err = env.run(t, "profile", "add", "vanilla")
	require.NoError(t, err)

	out, err = env.run(t, "profile", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "* modded memory=4096M")
	assert.Contains(t, out, "  vanilla")

	_, err = env.run(t, "profile", "select", "vanilla")
	require.NoError(t, err)
	out, err = env.run(t, "profile", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "* vanilla")

	_, err = env.run(t, "profile", "remove", "modded")
	require.NoError(t, err)
	_, err = env.run(t, "profile", "remove", "modded")
	assert.Error(t, err)
	_, err = env.run(t, "profile", "select", "ghost")
	assert.Error(t, err)
}

func TestLoginCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "login", "Notch")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as Notch (b50ad385-829d-3141-a216-7e7d7539ba7f)")

	out, err = env.run(t, "login")
	require.NoError(t, err)
	assert.Equal(t, "Notch b50ad385-829d-3141-a216-7e7d7539ba7f", strings.TrimSpace(out))

	_, err = env.run(t, "login", "not a name!")
	assert.Error(t, err)

	out, err = env.run(t, "login", "--logout")
	require.NoError(t, err)
	assert.Contains(t, out, "logged out")
	_, err = env.run(t, "login")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 5, exitCode(&appExitError{code: 5}))
	assert.Equal(t, 130, exitCode(context.Canceled))
	assert.Equal(t, 3, exitCode(&update.PartialUpdateError{Err: os.ErrPermission}))
	assert.Equal(t, 4, exitCode(orchestrator.ErrBusy))
	assert.Equal(t, 1, exitCode(os.ErrNotExist))
}
