package cli

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/trackdrop/internal/cliconfig"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  `View and manage trackctl configuration.`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cliconfig.Path()
			if a.jsonOutput {
				return a.printer.JSON(map[string]any{
					"base_url":      a.cfg.BaseURL,
					"authenticated": a.cfg.IsAuthenticated(),
					"artist_id":     a.cfg.ArtistID,
					"http_timeout":  a.cfg.GetTimeout("http").String(),
					"watch_timeout": a.cfg.GetTimeout("watch").String(),
					"config_path":   path,
				})
			}

			a.printer.Section("Configuration")
			a.printer.KeyValue("Base URL", a.cfg.BaseURL)
			a.printer.KeyValue("Authenticated", fmt.Sprintf("%v", a.cfg.IsAuthenticated()))
			a.printer.KeyValue("Artist", a.cfg.ArtistID)
			a.printer.KeyValue("HTTP timeout", a.cfg.GetTimeout("http").String())
			a.printer.KeyValue("Watch timeout", a.cfg.GetTimeout("watch").String())
			a.printer.KeyValue("File", path)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value.

Available keys:
  ` + strings.Join(cliconfig.Keys, "\n  ") + `

Examples:
  trackctl config set base_url https://api.example.com
  trackctl config set token eyJhbGciOi...
  trackctl config set timeouts.watch 30m`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Reload without env overrides so they are not written to disk.
			fileCfg, err := cliconfig.LoadFile()
			if err != nil {
				return err
			}
			if err := fileCfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := fileCfg.Save(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			a.printer.Success("Set %s", args[0])
			return nil
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cliconfig.Path()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.printer.Out(), p)
			return err
		},
	}

	cmd.AddCommand(show, set, path)
	return cmd
}
