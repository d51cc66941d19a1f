package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/yagualauncher/yagua/internal/download"
	"github.com/yagualauncher/yagua/internal/utils"
)

var (
	home, _                 = os.UserHomeDir()
	DefaultConfigDir        = filepath.Join(home, ".yagua")
	DefaultConfigPath       = filepath.Join(DefaultConfigDir, "config.json")
	DefaultInstallDir       = filepath.Join(home, "YaguaLauncher")
	DefaultLogFilePath      = filepath.Join(DefaultConfigDir, "logs", "yagua.log")
	DefaultProfilesPath     = filepath.Join(DefaultConfigDir, "profiles.json")
	DefaultSessionPath      = filepath.Join(DefaultConfigDir, "session.json")
	DefaultControlPlaneAddr = "127.0.0.1:7938"
)

const (
	DefaultWorkers    = 4
	DefaultMaxRetries = 3
	DefaultLockWait   = 30 * time.Second
)

var ErrNoManifestURL = errors.New("config: manifest url is required")

type Config struct {
	InstallDir  string        `json:"install_dir" mapstructure:"install_dir"`
	ManifestURL string        `json:"manifest_url" mapstructure:"manifest_url"`
	StagingDir  string        `json:"staging_dir,omitempty" mapstructure:"staging_dir"`
	Workers     int           `json:"workers" mapstructure:"workers"`
	MaxRetries  int           `json:"max_retries" mapstructure:"max_retries"`
	RetryDelay  time.Duration `json:"retry_delay,omitempty" mapstructure:"retry_delay"`
	LockWait    time.Duration `json:"lock_wait,omitempty" mapstructure:"lock_wait"`

	PreferPatch     bool     `json:"prefer_patch" mapstructure:"prefer_patch"`
	Preserve        []string `json:"preserve,omitempty" mapstructure:"preserve"`
	VerifyInstalled bool     `json:"verify_installed" mapstructure:"verify_installed"`
	AllowOffline    bool     `json:"allow_offline" mapstructure:"allow_offline"`

	ProfilesFile string `json:"profiles_file,omitempty" mapstructure:"profiles_file"`
	SessionFile  string `json:"session_file,omitempty" mapstructure:"session_file"`

	Launch       LaunchConfig       `json:"launch" mapstructure:"launch"`
	ControlPlane ControlPlaneConfig `json:"control_plane" mapstructure:"control_plane"`
	S3           download.S3Config  `json:"s3" mapstructure:"s3"`

	Path string `json:"-" mapstructure:"-"`
}

type LaunchConfig struct {
	Executable string            `json:"executable" mapstructure:"executable"`
	Args       []string          `json:"args,omitempty" mapstructure:"args"`
	WorkDir    string            `json:"work_dir,omitempty" mapstructure:"work_dir"`
	EnvFile    string            `json:"env_file,omitempty" mapstructure:"env_file"`
	Env        map[string]string `json:"env,omitempty" mapstructure:"env"`
	Foreground bool              `json:"foreground" mapstructure:"foreground"`
}

type ControlPlaneConfig struct {
	Addr      string `json:"addr" mapstructure:"addr"`
	AuthToken string `json:"auth_token,omitempty" mapstructure:"auth_token"`
	// RateLimit is a ulule limiter formatted rate, e.g. "60-M".
	RateLimit string `json:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

func Default() *Config {
	return &Config{
		InstallDir:   DefaultInstallDir,
		Workers:      DefaultWorkers,
		MaxRetries:   DefaultMaxRetries,
		LockWait:     DefaultLockWait,
		ProfilesFile: DefaultProfilesPath,
		SessionFile:  DefaultSessionPath,
		ControlPlane: ControlPlaneConfig{Addr: DefaultControlPlaneAddr},
		Path:         DefaultConfigPath,
	}
}

// Validate normalizes paths and fills defaults. The manifest url is checked
// only for shape here; commands that need it call RequireManifest.
func (c *Config) Validate() error {
	var err error

	if c.InstallDir == "" {
		c.InstallDir = DefaultInstallDir
	}
	if c.InstallDir, err = utils.ResolvePath(c.InstallDir); err != nil {
		return fmt.Errorf("config: install dir: %w", err)
	}

	if c.StagingDir != "" {
		if c.StagingDir, err = utils.ResolvePath(c.StagingDir); err != nil {
			return fmt.Errorf("config: staging dir: %w", err)
		}
	}

	if c.ProfilesFile == "" {
		c.ProfilesFile = DefaultProfilesPath
	}
	if c.ProfilesFile, err = utils.ResolvePath(c.ProfilesFile); err != nil {
		return fmt.Errorf("config: profiles file: %w", err)
	}

	if c.SessionFile == "" {
		c.SessionFile = DefaultSessionPath
	}
	if c.SessionFile, err = utils.ResolvePath(c.SessionFile); err != nil {
		return fmt.Errorf("config: session file: %w", err)
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config: path: %w", err)
		}
	}

	c.ManifestURL = strings.TrimSpace(c.ManifestURL)
	if c.ManifestURL != "" {
		if err := validateManifestURL(c.ManifestURL); err != nil {
			return err
		}
	}

	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 || c.LockWait < 0 {
		return errors.New("config: durations must not be negative")
	}

	for _, pattern := range c.Preserve {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("config: invalid preserve pattern %q", pattern)
		}
	}

	if c.ControlPlane.Addr == "" {
		c.ControlPlane.Addr = DefaultControlPlaneAddr
	}

	return nil
}

func (c *Config) RequireManifest() error {
	if c.ManifestURL == "" {
		return ErrNoManifestURL
	}
	return nil
}

func validateManifestURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: manifest url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("config: manifest url %q has no host", raw)
		}
	case "s3":
		if u.Host == "" {
			return fmt.Errorf("config: manifest url %q has no bucket", raw)
		}
	case "file", "":
	default:
		if len(u.Scheme) == 1 {
			// windows drive letter
			return nil
		}
		return fmt.Errorf("config: manifest url scheme %q is not supported", u.Scheme)
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// the file may hold the control plane token and s3 keys
	return os.WriteFile(path, data, 0600)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
