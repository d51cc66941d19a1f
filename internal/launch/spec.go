package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/yagualauncher/yagua/internal/utils"
	"github.com/yagualauncher/yagua/internal/version"
)

// Spec is everything needed to start the target application once.
type Spec struct {
	Executable string            `json:"executable"`
	Args       []string          `json:"args"`
	Dir        string            `json:"dir"`
	Env        map[string]string `json:"env,omitempty"`
	Foreground bool              `json:"foreground"`
}

// Environ returns the process environment followed by Env, sorted by key.
func (s Spec) Environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+s.Env[k])
	}
	return env
}

// Vars are the values available to ${name} placeholders in arguments.
type Vars struct {
	PlayerName  string
	PlayerUUID  string
	GameDir     string
	VersionName string
	ProfileName string
	MemoryMB    int
}

func (v Vars) Map() map[string]string {
	m := map[string]string{
		"auth_player_name": v.PlayerName,
		"auth_uuid":        v.PlayerUUID,
		"game_directory":   v.GameDir,
		"version_name":     v.VersionName,
		"profile_name":     v.ProfileName,
		"launcher_name":    version.AppName,
		"launcher_version": version.Version,
	}
	if v.MemoryMB > 0 {
		m["memory_mb"] = strconv.Itoa(v.MemoryMB)
	}
	return m
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z0-9_.]+)\}`)

// ExpandArgs substitutes ${name} placeholders. Unknown names are kept verbatim.
func ExpandArgs(args []string, vars map[string]string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = placeholder.ReplaceAllStringFunc(arg, func(m string) string {
			if v, ok := vars[m[2:len(m)-1]]; ok {
				return v
			}
			return m
		})
	}
	return out
}

type BuildOptions struct {
	InstallDir string
	Executable string
	Args       []string
	// ExtraArgs come from the selected profile and are appended after Args.
	ExtraArgs []string
	WorkDir   string
	// EnvFile is an optional dotenv file, relative to InstallDir when not absolute.
	EnvFile    string
	Env        map[string]string
	Vars       Vars
	Foreground bool
}

// BuildSpec resolves options into a Spec. Relative paths resolve against the
// install dir; env precedence is dotenv file, then Env.
func BuildSpec(opts BuildOptions) (Spec, error) {
	if opts.Executable == "" {
		return Spec{}, ErrNoExecutable
	}
	if opts.Vars.GameDir == "" {
		opts.Vars.GameDir = opts.InstallDir
	}
	vars := opts.Vars.Map()

	spec := Spec{
		Executable: resolveExecutable(opts.InstallDir, opts.Executable),
		Args:       ExpandArgs(append(append([]string{}, opts.Args...), opts.ExtraArgs...), vars),
		Dir:        opts.InstallDir,
		Env:        make(map[string]string),
		Foreground: opts.Foreground,
	}

	if opts.WorkDir != "" {
		spec.Dir = resolveIn(opts.InstallDir, opts.WorkDir)
	}

	if opts.EnvFile != "" {
		path := resolveIn(opts.InstallDir, opts.EnvFile)
		fileEnv, err := godotenv.Read(path)
		if err != nil {
			return Spec{}, &LaunchError{Op: "read env file", Executable: spec.Executable, Err: fmt.Errorf("%s: %w", path, err)}
		}
		for k, v := range fileEnv {
			spec.Env[k] = v
		}
	}
	for k, v := range opts.Env {
		spec.Env[k] = v
	}
	return spec, nil
}

func resolveIn(root, path string) string {
	if filepath.IsAbs(path) || root == "" {
		return path
	}
	return filepath.Join(root, path)
}

// resolveExecutable prefers a file inside the installation and otherwise leaves
// the name for a PATH lookup.
func resolveExecutable(root, exe string) string {
	if filepath.IsAbs(exe) || root == "" {
		return exe
	}
	candidate := filepath.Join(root, filepath.FromSlash(exe))
	if utils.FileExists(candidate) {
		return candidate
	}
	return exe
}
