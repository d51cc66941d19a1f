package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newLaunchCmd(v *viper.Viper) *cobra.Command {
	var opts cycleOptions

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Update if the manifest is reachable, then launch",
		Long: `Runs the same cycle as the root command but falls back to the installed
version when the manifest cannot be fetched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(v)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			cfg.AllowOffline = true
			opts.launch = true
			return runCycle(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.profile, "profile", "p", "", "Launch profile")
	cmd.Flags().BoolVar(&opts.detach, "detach", false, "Do not wait for the application to exit")
	return cmd
}
