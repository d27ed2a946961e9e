// Package metadata extracts best-effort technical and tag metadata from
// uploaded audio. Extraction is a strategy chosen at startup; callers run it
// through Run, which bounds it with a timeout and never lets a corrupt file
// fail the upload.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrUnsupported  = errors.New("metadata: unsupported format")
	ErrCorrupted    = errors.New("metadata: file appears corrupted")
	ErrTimeout      = errors.New("metadata: extraction timed out")
	ErrToolNotFound = errors.New("metadata: ffprobe not found in PATH")
)

type Tags struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	AlbumArtist string `json:"albumArtist,omitempty"`
	Album       string `json:"album,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Year        int    `json:"year,omitempty"`
	Track       int    `json:"track,omitempty"`
	HasPicture  bool   `json:"hasPicture,omitempty"`
}

func (t Tags) IsZero() bool {
	return t == Tags{}
}

type CoverInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// Metadata is the structured result persisted on the upload record.
type Metadata struct {
	Duration   float64    `json:"duration"`
	Format     string     `json:"format,omitempty"`
	Codec      string     `json:"codec,omitempty"`
	BitRate    int64      `json:"bitrate,omitempty"`
	SampleRate int        `json:"sampleRate,omitempty"`
	Channels   int        `json:"channels,omitempty"`
	BitDepth   int        `json:"bitDepth,omitempty"`
	Tags       Tags       `json:"tags,omitempty"`
	Cover      *CoverInfo `json:"cover,omitempty"`
	Extractor  string     `json:"extractor,omitempty"`
	Degraded   bool       `json:"degraded,omitempty"`
}

// Seconds rounds the extracted duration to whole seconds.
func (m *Metadata) Seconds() int {
	if m == nil || m.Duration <= 0 {
		return 0
	}
	return int(m.Duration + 0.5)
}

// merge fills fields that m is missing from other.
func (m *Metadata) merge(other *Metadata) {
	if other == nil {
		return
	}
	if m.Duration <= 0 {
		m.Duration = other.Duration
	}
	if m.Format == "" {
		m.Format = other.Format
	}
	if m.Codec == "" {
		m.Codec = other.Codec
	}
	if m.BitRate == 0 {
		m.BitRate = other.BitRate
	}
	if m.SampleRate == 0 {
		m.SampleRate = other.SampleRate
	}
	if m.Channels == 0 {
		m.Channels = other.Channels
	}
	if m.BitDepth == 0 {
		m.BitDepth = other.BitDepth
	}
	if m.Tags.IsZero() {
		m.Tags = other.Tags
	}
}

// Source is the audio handed to an extractor. Path is set when the bytes
// are already on local disk.
type Source struct {
	File        io.ReadSeeker
	Path        string
	Size        int64
	ContentType string
}

func (s Source) rewind() error {
	if _, err := s.File.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind source: %w", err)
	}
	return nil
}

type Extractor interface {
	Name() string
	Extract(ctx context.Context, src Source) (*Metadata, error)
}

// Noop is the degraded default: it reports no metadata and never fails.
type Noop struct{}

func (Noop) Name() string { return "none" }

func (Noop) Extract(ctx context.Context, src Source) (*Metadata, error) {
	return &Metadata{Extractor: "none", Format: FormatFor(src.ContentType)}, nil
}

// Run executes e with a deadline. On any failure, including a panic inside
// the extractor, it returns an empty degraded result together with the cause.
func Run(ctx context.Context, e Extractor, src Source, timeout time.Duration) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		md  *Metadata
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: extractor panic: %v", ErrCorrupted, r)}
			}
		}()
		md, err := e.Extract(ctx, src)
		done <- result{md: md, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return degraded(e, src), r.err
		}
		if r.md == nil {
			return degraded(e, src), nil
		}
		return r.md, nil
	case <-ctx.Done():
		return degraded(e, src), fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

func degraded(e Extractor, src Source) *Metadata {
	return &Metadata{
		Extractor: e.Name(),
		Format:    FormatFor(src.ContentType),
		Degraded:  true,
	}
}

// NormalizeContentType lowercases a MIME type and strips parameters.
func NormalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// FormatFor maps an allowed audio MIME type to its container name.
func FormatFor(contentType string) string {
	switch NormalizeContentType(contentType) {
	case "audio/mpeg", "audio/mp3", "audio/mpeg3", "audio/x-mpeg-3":
		return "mp3"
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return "wav"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "audio/aac":
		return "m4a"
	}
	return ""
}
