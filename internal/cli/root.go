// Package cli implements the trackctl commands.
package cli

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/client"
	"github.com/abdul-hamid-achik/trackdrop/internal/cliconfig"
	"github.com/abdul-hamid-achik/trackdrop/internal/output"
	"github.com/abdul-hamid-achik/trackdrop/internal/version"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var errNotAuthenticated = errors.New("not authenticated: run 'trackctl config set token <jwt>' or set " + cliconfig.EnvToken)

// app holds what the commands share once PersistentPreRunE has run.
type app struct {
	jsonOutput bool
	quietMode  bool

	cfg       *cliconfig.Config
	printer   *output.Printer
	apiClient client.API

	// Overridable in tests.
	newClient    func(baseURL, token string) client.API
	openURL      func(url string) error
	pollInterval time.Duration
	stdout       io.Writer
	stderr       io.Writer
}

func defaultApp() *app {
	return &app{
		newClient: func(baseURL, token string) client.API {
			return client.New(baseURL, token)
		},
		openURL:      browser.OpenURL,
		pollInterval: 2 * time.Second,
	}
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultApp())
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "trackctl",
		Short: "Submit tracks and follow their processing",
		Long: `trackctl talks to the track upload API.

Uploads are accepted immediately and processed in the background; use
status --watch to follow one until it completes or fails.

Get started:
  trackctl config set base_url https://api.example.com
  trackctl config set token <jwt>
  trackctl submit song.mp3 --title "Night Drive" --artist <artist-id> --wait`,
		Version: version.Full(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			var err error
			a.cfg, err = cliconfig.Load()
			if err != nil {
				return err
			}

			opts := []output.Option{
				output.WithJSON(a.jsonOutput),
				output.WithQuiet(a.quietMode),
			}
			if a.stdout != nil {
				opts = append(opts, output.WithOutput(a.stdout))
			}
			if a.stderr != nil {
				opts = append(opts, output.WithErrOutput(a.stderr))
			}
			a.printer = output.New(opts...)

			a.apiClient = a.newClient(a.cfg.BaseURL, a.cfg.Token)
			if c, ok := a.apiClient.(*client.Client); ok {
				c.SetTimeout(a.cfg.GetTimeout("http"))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output as JSON (for scripting)")
	root.PersistentFlags().BoolVar(&a.quietMode, "quiet", false, "Suppress non-error output")
	root.SetVersionTemplate("trackctl version {{.Version}}\n")

	root.AddCommand(
		newSubmitCmd(a),
		newStatusCmd(a),
		newOpenCmd(a),
		newConfigCmd(a),
	)
	return root
}

// Execute runs trackctl with ctx and prints the returned error.
func Execute(ctx context.Context) error {
	a := defaultApp()
	err := newRootCmd(a).ExecuteContext(ctx)
	if err != nil {
		if a.printer == nil {
			a.printer = output.New()
		}
		a.printer.Error("%v", err)
	}
	return err
}

func (a *app) requireAuth() error {
	if !a.cfg.IsAuthenticated() {
		return errNotAuthenticated
	}
	return nil
}

func (a *app) progressQuiet() bool {
	return a.quietMode || a.jsonOutput
}
