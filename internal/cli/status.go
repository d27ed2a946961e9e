package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/client"
	"github.com/abdul-hamid-achik/trackdrop/internal/output"
	"github.com/spf13/cobra"
)

const maxConsecutiveErrors = 5

func newStatusCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status <upload-id>...",
		Short: "Show the processing status of uploads",
		Long: `Show the status of one or more uploads.

Examples:
  trackctl status demo-7            # Details for one upload
  trackctl status demo-7 demo-8     # Table for several
  trackctl status demo-7 --watch    # Poll until completed or failed`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAuth(); err != nil {
				return err
			}
			if watch {
				if len(args) != 1 {
					return fmt.Errorf("--watch takes exactly one upload ID")
				}
				return a.watch(cmd.Context(), args[0])
			}
			if len(args) == 1 {
				return a.showStatus(cmd.Context(), args[0])
			}
			return a.showStatusTable(cmd.Context(), args)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch until processing finishes")
	return cmd
}

func (a *app) showStatus(ctx context.Context, uploadID string) error {
	status, err := a.apiClient.GetStatus(ctx, uploadID)
	if err != nil {
		return fmt.Errorf("failed to get upload status: %w", err)
	}

	if a.jsonOutput {
		return a.printer.JSON(status)
	}
	a.printer.Quiet(status.Status)
	a.printStatus(status)
	return nil
}

func (a *app) printStatus(s *client.UploadStatus) {
	a.printer.Section("Upload")
	a.printer.KeyValue("ID", s.UploadID)
	a.printer.KeyValue("Status", output.Status(s.Status))
	a.printer.KeyValue("Title", s.Title)
	a.printer.KeyValue("Artist", s.ArtistID)
	a.printer.KeyValue("Album", s.AlbumID)
	a.printer.KeyValue("Genre", s.GenreID)
	a.printer.KeyValue("Track", s.ResultEntityID)
	a.printer.KeyValue("Job", s.JobID)
	if s.RetryCount > 0 {
		a.printer.KeyValue("Retries", strconv.Itoa(s.RetryCount))
	}
	a.printer.KeyValue("Error", s.LastError)
	a.printer.KeyValue("Updated", formatTime(s.UpdatedAt))
}

func (a *app) showStatusTable(ctx context.Context, uploadIDs []string) error {
	statuses := make([]*client.UploadStatus, 0, len(uploadIDs))
	table := output.NewTableWriter(a.printer.Out(), []string{"UPLOAD", "STATUS", "TITLE", "TRACK", "ERROR"}, a.quietMode)

	for _, id := range uploadIDs {
		s, err := a.apiClient.GetStatus(ctx, id)
		if err != nil {
			if client.IsAuthError(err) {
				return fmt.Errorf("authentication failed: %w", err)
			}
			a.printer.Error("%s: %v", id, err)
			continue
		}
		statuses = append(statuses, s)
		table.Append([]string{s.UploadID, s.Status, s.Title, s.ResultEntityID, s.LastError})
	}

	if a.jsonOutput {
		return a.printer.JSON(statuses)
	}
	if table.Len() > 0 {
		table.Render()
	}
	if len(statuses) < len(uploadIDs) {
		return fmt.Errorf("%d of %d uploads could not be fetched", len(uploadIDs)-len(statuses), len(uploadIDs))
	}
	return nil
}

// watch polls until the upload is terminal. A failed upload is reported as an error.
func (a *app) watch(ctx context.Context, uploadID string) error {
	spinner := output.NewSpinnerWriter(a.stderrOrDefault(), fmt.Sprintf("Watching %s...", uploadID), a.progressQuiet())

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	timeout := time.After(a.cfg.GetTimeout("watch"))
	var consecutiveErrors int

	for {
		select {
		case <-ctx.Done():
			spinner.Finish()
			return ctx.Err()
		case <-timeout:
			spinner.Finish()
			return fmt.Errorf("timed out waiting for upload %s", uploadID)
		case <-ticker.C:
			status, err := a.apiClient.GetStatus(ctx, uploadID)
			if err != nil {
				consecutiveErrors++
				if client.IsAuthError(err) {
					spinner.Finish()
					return fmt.Errorf("authentication failed: %w", err)
				}
				spinner.Update(fmt.Sprintf("Status: error (%d/%d retries)", consecutiveErrors, maxConsecutiveErrors))
				if consecutiveErrors >= maxConsecutiveErrors {
					spinner.Finish()
					return fmt.Errorf("failed after %d consecutive errors: %w", consecutiveErrors, err)
				}
				continue
			}

			consecutiveErrors = 0
			spinner.Update("Status: " + status.Status)
			if !status.IsTerminal() {
				continue
			}

			spinner.Finish()
			if a.jsonOutput {
				if err := a.printer.JSON(status); err != nil {
					return err
				}
			} else {
				a.printer.Quiet(status.Status)
				a.printStatus(status)
			}

			if status.Status != "completed" {
				return fmt.Errorf("upload %s %s: %s", uploadID, status.Status, status.LastError)
			}
			a.printer.Success("Upload %s completed", uploadID)
			return nil
		}
	}
}

func (a *app) stderrOrDefault() io.Writer {
	if a.stderr != nil {
		return a.stderr
	}
	return os.Stderr
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
