package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yagualauncher/yagua/internal/profile"
)

func newProfileCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage launch profiles",
	}

	openStore := func() (*profile.Store, error) {
		cfg, err := configFrom(v)
		if err != nil {
			return nil, err
		}
		return profile.Load(cfg.ProfilesFile)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List profiles, the selected one is starred",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			selected := store.Selected().Name
			for _, name := range store.Names() {
				mark := " "
				if name == selected {
					mark = "*"
				}
				p, _ := store.Get(name)
				details := []string{}
				if p.Manifest != "" {
					details = append(details, "manifest="+p.Manifest)
				}
				if p.MemoryMB > 0 {
					details = append(details, fmt.Sprintf("memory=%dM", p.MemoryMB))
				}
				line := strings.TrimSpace(fmt.Sprintf("%s %s", name, strings.Join(details, " ")))
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, line)
			}
			return nil
		},
	})

	var p profile.Profile
	var selectIt bool
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create or replace a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			p.Name = strings.TrimSpace(args[0])
			if err := store.Put(p); err != nil {
				return err
			}
			if selectIt {
				if err := store.Select(p.Name); err != nil {
					return err
				}
			}
			if err := store.Save(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved profile %s\n", p.Name)
			return err
		},
	}
	addCmd.Flags().StringVar(&p.Manifest, "manifest", "", "Manifest URL overriding the configured one")
	addCmd.Flags().IntVar(&p.MemoryMB, "memory", 0, "Memory in MiB, available as ${memory_mb}")
	addCmd.Flags().StringArrayVar(&p.Args, "arg", nil, "Extra argument, repeatable")
	addCmd.Flags().StringToStringVar(&p.Env, "env", nil, "Extra environment, KEY=VALUE")
	addCmd.Flags().BoolVar(&selectIt, "select", false, "Select the profile")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			return store.Save()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "select <name>",
		Short: "Use a profile by default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Select(args[0]); err != nil {
				return err
			}
			return store.Save()
		},
	})

	return cmd
}
