package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/trackdrop/internal/client"
	"github.com/abdul-hamid-achik/trackdrop/internal/output"
	"github.com/spf13/cobra"
)

type submitFlags struct {
	title    string
	artistID string
	albumID  string
	genreID  string
	cover    string
	uploadID string
	status   string
	duration int
	wait     bool
}

func newSubmitCmd(a *app) *cobra.Command {
	var f submitFlags

	cmd := &cobra.Command{
		Use:   "submit <audio-file>",
		Short: "Upload a track for processing",
		Long: `Upload an audio file, plus an optional cover image, as a new track.

The server answers as soon as the files are stored and the job is queued.
Resubmitting with the same --upload-id is safe: an upload that is already
queued or completed is reported as is, and a failed one is retried.

Examples:
  trackctl submit song.mp3 --title "Night Drive" --artist a1b2
  trackctl submit song.flac --title Intro --artist a1b2 --cover art.png --wait
  trackctl submit song.wav --title Demo --artist a1b2 --upload-id demo-7 --quiet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSubmit(cmd, args[0], &f)
		},
	}

	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Track title (required)")
	cmd.Flags().StringVarP(&f.artistID, "artist", "a", "", "Artist ID (defaults to artist_id from config)")
	cmd.Flags().StringVar(&f.albumID, "album", "", "Album ID")
	cmd.Flags().StringVar(&f.genreID, "genre", "", "Genre ID")
	cmd.Flags().StringVarP(&f.cover, "cover", "c", "", "Cover image file")
	cmd.Flags().StringVar(&f.uploadID, "upload-id", "", "Idempotency key; generated by the server when empty")
	cmd.Flags().StringVar(&f.status, "status", "", "Requested track status (draft, published, private)")
	cmd.Flags().IntVar(&f.duration, "duration", 0, "Duration hint in seconds, used when it cannot be read from the file")
	cmd.Flags().BoolVarP(&f.wait, "wait", "w", false, "Wait until processing finishes")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func (a *app) runSubmit(cmd *cobra.Command, audioPath string, f *submitFlags) error {
	if err := a.requireAuth(); err != nil {
		return err
	}

	artistID := f.artistID
	if artistID == "" {
		artistID = a.cfg.ArtistID
	}
	if artistID == "" {
		return fmt.Errorf("--artist is required (or set artist_id with 'trackctl config set')")
	}

	total, err := totalSize(audioPath, f.cover)
	if err != nil {
		return err
	}

	req := &client.SubmitRequest{
		AudioPath: audioPath,
		CoverPath: f.cover,
		UploadID:  f.uploadID,
		Title:     f.title,
		ArtistID:  artistID,
		AlbumID:   f.albumID,
		GenreID:   f.genreID,
		Status:    f.status,
	}
	if cmd.Flags().Changed("duration") {
		d := f.duration
		req.Duration = &d
	}

	progress := output.NewByteProgressWriter(a.stderrOrDefault(), total, "Uploading "+filepath.Base(audioPath), a.progressQuiet())
	req.Progress = progress

	resp, err := a.apiClient.Submit(cmd.Context(), req)
	progress.Finish()
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	if f.wait && resp.Status != "completed" {
		a.printer.Info("Upload %s accepted, waiting for processing", resp.UploadID)
		return a.watch(cmd.Context(), resp.UploadID)
	}

	if a.jsonOutput {
		return a.printer.JSON(resp)
	}

	a.printer.Quiet(resp.UploadID)
	a.printer.Success("Upload %s accepted (%s)", resp.UploadID, output.Status(resp.Status))
	a.printer.KeyValue("Job", resp.JobID)
	a.printer.KeyValue("Track", resp.ResultEntityID)
	a.printer.KeyValue("Status URL", resp.CheckStatusURL)
	return nil
}

func totalSize(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return 0, fmt.Errorf("cannot read %s: %w", p, err)
		}
		if info.IsDir() {
			return 0, fmt.Errorf("%s is a directory", p)
		}
		total += info.Size()
	}
	return total, nil
}
