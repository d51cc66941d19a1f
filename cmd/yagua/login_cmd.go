package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yagualauncher/yagua/internal/profile"
)

func newLoginCmd(v *viper.Viper) *cobra.Command {
	var logout bool

	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Store an offline player session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(v)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if logout {
				if err := profile.ClearSession(cfg.SessionFile); err != nil {
					return err
				}
				_, err := fmt.Fprintln(out, "logged out")
				return err
			}

			if len(args) == 0 {
				s, err := profile.LoadSession(cfg.SessionFile)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s %s\n", s.Username, s.UUID)
				return err
			}

			s, err := profile.Offline(args[0])
			if err != nil {
				return err
			}
			if err := profile.SaveSession(s, cfg.SessionFile); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "logged in as %s (%s)\n", s.Username, s.UUID)
			return err
		},
	}
	cmd.Flags().BoolVar(&logout, "logout", false, "Remove the stored session")
	return cmd
}
