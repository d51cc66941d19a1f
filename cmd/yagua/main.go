package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yagualauncher/yagua/internal/config"
	"github.com/yagualauncher/yagua/internal/utils"
	"github.com/yagualauncher/yagua/internal/version"
)

var home, _ = os.UserHomeDir()

const (
	configFileName = "config"
	envPrefix      = "YAGUA"
)

func newRootCmd() *cobra.Command {
	return newRootCmdWithViper(viper.New())
}

func newRootCmdWithViper(v *viper.Viper) *cobra.Command {
	var opts cycleOptions

	rootCmd := &cobra.Command{
		Use:     "yagua",
		Short:   "YaguaLauncher keeps an installation in sync with its manifest and launches it",
		Version: version.Detailed(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(v)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			opts.launch = true
			return runCycle(cmd.Context(), cfg, opts)
		},
	}

	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringVarP(&opts.profile, "profile", "p", "", "Launch profile")
	rootCmd.Flags().BoolVar(&opts.detach, "detach", false, "Do not wait for the application to exit")

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", config.DefaultConfigPath, "Config file")
	pf.StringP("install-dir", "d", config.DefaultInstallDir, "Installation directory")
	pf.StringP("manifest", "m", "", "Manifest URL (http, https, s3 or a local path)")
	pf.IntP("workers", "w", config.DefaultWorkers, "Concurrent downloads")

	rootCmd.AddCommand(
		newUpdateCmd(v),
		newPlanCmd(v),
		newVerifyCmd(v),
		newLaunchCmd(v),
		newServeCmd(v),
		newProfileCmd(v),
		newLoginCmd(v),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	// TODO rotate log files instead of truncating them per run
	logFile := config.DefaultLogFilePath
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// the interceptor stamps each line
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(exitCode(err))
	}
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) error {
	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(filepath.Join(home, ".yagua"))
		v.AddConfigPath(filepath.Join(home, ".config", "yagua"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	setDefaults(v)

	flags := cmd.Flags()
	_ = v.BindPFlag("install_dir", flags.Lookup("install-dir"))
	_ = v.BindPFlag("manifest_url", flags.Lookup("manifest"))
	_ = v.BindPFlag("workers", flags.Lookup("workers"))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// setDefaults registers every key so that YAGUA_* variables reach Unmarshal
// even when the config file does not mention them.
func setDefaults(v *viper.Viper) {
	d := config.Default()
	v.SetDefault("install_dir", d.InstallDir)
	v.SetDefault("manifest_url", "")
	v.SetDefault("staging_dir", "")
	v.SetDefault("workers", d.Workers)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("lock_wait", d.LockWait)
	v.SetDefault("prefer_patch", false)
	v.SetDefault("verify_installed", false)
	v.SetDefault("allow_offline", false)
	v.SetDefault("profiles_file", d.ProfilesFile)
	v.SetDefault("session_file", d.SessionFile)
	v.SetDefault("launch.executable", "")
	v.SetDefault("launch.work_dir", "")
	v.SetDefault("launch.env_file", "")
	v.SetDefault("launch.foreground", false)
	v.SetDefault("control_plane.addr", d.ControlPlane.Addr)
	v.SetDefault("control_plane.auth_token", "")
	v.SetDefault("control_plane.rate_limit", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
}

func configFrom(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
