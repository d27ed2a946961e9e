package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOpenCmd(a *app) *cobra.Command {
	var (
		cover     bool
		printOnly bool
	)

	cmd := &cobra.Command{
		Use:   "open <upload-id>",
		Short: "Open the processed track in a browser",
		Long: `Open the audio of a completed upload in the default browser.

Examples:
  trackctl open demo-7
  trackctl open demo-7 --cover
  trackctl open demo-7 --print   # Only print the URL`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAuth(); err != nil {
				return err
			}
			ctx := cmd.Context()
			uploadID := args[0]

			status, err := a.apiClient.GetStatus(ctx, uploadID)
			if err != nil {
				return fmt.Errorf("failed to get upload status: %w", err)
			}
			if status.Status != "completed" || status.ResultEntityID == "" {
				return fmt.Errorf("upload %s is %s, no track to open yet", uploadID, status.Status)
			}

			track, err := a.apiClient.GetTrack(ctx, status.ResultEntityID)
			if err != nil {
				return fmt.Errorf("failed to get track: %w", err)
			}

			target := track.AudioURL
			if cover {
				if track.CoverURL == "" {
					return fmt.Errorf("track %s has no cover", track.ID)
				}
				target = track.CoverURL
			}

			if a.jsonOutput {
				return a.printer.JSON(track)
			}
			if printOnly || a.quietMode {
				_, err := fmt.Fprintln(a.printer.Out(), target)
				return err
			}

			a.printer.Info("Opening %s", target)
			if err := a.openURL(target); err != nil {
				a.printer.Warn("Could not open browser automatically")
				a.printer.Printf("Open this URL manually: %s\n", target)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cover, "cover", false, "Open the cover image instead of the audio")
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the URL instead of opening it")
	return cmd
}
