package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yagualauncher/yagua/internal/manifest"
	"github.com/yagualauncher/yagua/internal/reconcile"
	"github.com/yagualauncher/yagua/internal/utils"
)

func newUpdateCmd(v *viper.Viper) *cobra.Command {
	var opts cycleOptions

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Bring the installation up to date without launching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(v)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return runCycle(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.profile, "profile", "p", "", "Profile whose manifest to use")
	return cmd
}

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type planReport struct {
	Version      string               `json:"version" yaml:"version"`
	Installed    string               `json:"installed,omitempty" yaml:"installed,omitempty"`
	Counts       reconcile.Counts     `json:"counts" yaml:"counts"`
	DownloadSize int64                `json:"downloadSize" yaml:"downloadSize"`
	Entries      reconcile.UpdatePlan `json:"entries" yaml:"entries"`
}

func newPlanCmd(v *viper.Viper) *cobra.Command {
	var format, profileName string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what an update would change, without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case formatText, formatJSON, formatYAML:
			default:
				return fmt.Errorf("unknown format %q, want text, json or yaml", format)
			}

			cfg, err := configFrom(v)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			opts, err := a.runOptions(profileName, "")
			if err != nil {
				return err
			}
			url := opts.Profile.Manifest
			if url == "" {
				url = cfg.ManifestURL
			}

			m, err := manifest.Fetch(cmd.Context(), a.engine, url)
			if err != nil {
				return err
			}
			local, err := a.inst.LoadState()
			if errors.Is(err, manifest.ErrCorruptState) {
				slog.Warn("local state unreadable, planning a full install", "error", err)
				local = manifest.NewLocalState()
			} else if err != nil {
				return err
			}

			r := reconcile.Reconciler{PreferPatch: cfg.PreferPatch, Preserve: cfg.Preserve}
			plan := r.Plan(m, local)
			report := planReport{
				Version:      m.Version,
				Installed:    local.ManifestVersion,
				Counts:       plan.Counts(),
				DownloadSize: plan.DownloadSize(),
				Entries:      plan,
			}
			if report.Entries == nil {
				report.Entries = reconcile.UpdatePlan{}
			}
			return writePlan(cmd.OutOrStdout(), report, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Profile whose manifest to use")
	return cmd
}

func writePlan(w io.Writer, r planReport, format string) error {
	switch format {
	case formatJSON:
		data, err := utils.JSONMarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(r.Entries) == 0 {
		_, err := fmt.Fprintf(w, "up to date at version %s\n", r.Version)
		return err
	}

	fmt.Fprintf(w, "version %s -> %s: %d add, %d replace, %d patch, %d delete (%s to download)\n",
		orNone(r.Installed), r.Version, r.Counts.Add, r.Counts.Replace, r.Counts.Patch, r.Counts.Delete,
		humanize.IBytes(uint64(r.DownloadSize)))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range r.Entries {
		size := "-"
		if e.Entry != nil {
			size = humanize.IBytes(uint64(e.Entry.Size))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Action, e.Path, size)
	}
	return tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func newVerifyCmd(v *viper.Viper) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-hash installed files against the recorded checksums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(v)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if repair {
				cfg.VerifyInstalled = true
				return runCycle(cmd.Context(), cfg, cycleOptions{})
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			local, err := a.inst.LoadState()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var failed int
			var total int64
			for _, path := range local.Paths() {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				f := local.Files[path]
				ok, err := a.verifier.Verify(a.inst.Path(path), f.Checksum, f.Algo)
				switch {
				case err != nil:
					failed++
					fmt.Fprintf(out, "missing  %s: %v\n", path, err)
				case !ok:
					failed++
					fmt.Fprintf(out, "corrupt  %s\n", path)
				default:
					total += f.Size
				}
			}

			// files the last fetched manifest expects but the state does not track
			cached, err := manifest.LoadManifestCache(a.inst.ManifestCache)
			switch {
			case errors.Is(err, manifest.ErrNoCachedManifest):
			case err != nil:
				slog.Warn("manifest cache unreadable", "error", err)
			default:
				for _, e := range cached.Files {
					if _, ok := local.Files[e.Path]; !ok {
						failed++
						fmt.Fprintf(out, "missing  %s: not installed\n", e.Path)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d files failed verification, run `yagua verify --repair`", failed)
			}
			_, err = fmt.Fprintf(out, "verified %d files (%s) at version %s\n",
				len(local.Files), humanize.IBytes(uint64(total)), orNone(local.ManifestVersion))
			return err
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "Download missing or corrupt files again")
	return cmd
}
