package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yagualauncher/yagua/internal/controlplane"
	"github.com/yagualauncher/yagua/internal/orchestrator"
	"github.com/yagualauncher/yagua/internal/utils"
	"github.com/yagualauncher/yagua/internal/version"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	var addr, token string
	var noAuth bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local control plane for frontends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(v)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if cmd.Flag("http-addr").Changed {
				cfg.ControlPlane.Addr = addr
			}
			if cmd.Flag("http-token").Changed {
				cfg.ControlPlane.AuthToken = token
			}
			if cfg.ControlPlane.AuthToken == "" && !noAuth {
				cfg.ControlPlane.AuthToken = utils.TokenHex(16)
				slog.Info("control plane token generated", "token", cfg.ControlPlane.AuthToken)
			}
			if noAuth {
				cfg.ControlPlane.AuthToken = ""
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.orch.Close()

			resolve := func(req controlplane.RunRequest) (orchestrator.RunOptions, error) {
				return a.runOptions(req.Profile, req.ManifestURL)
			}
			srv, err := controlplane.NewServer(controlplane.Config{
				Addr:      cfg.ControlPlane.Addr,
				AuthToken: cfg.ControlPlane.AuthToken,
				RateLimit: cfg.ControlPlane.RateLimit,
			}, a.orch, resolve)
			if err != nil {
				return err
			}

			slog.Info("yagua serve", "version", version.Version, "revision", version.Revision, "install", cfg.InstallDir)
			defer slog.Info("Bye!")
			if err := srv.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "http-addr", "a", "", "Address to bind the control plane")
	cmd.Flags().StringVarP(&token, "http-token", "t", "", "Bearer token for the control plane")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "Disable control plane authentication")
	return cmd
}
