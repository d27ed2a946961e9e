package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FFprobe shells out to ffprobe. It understands every container ffmpeg does.
type FFprobe struct {
	path    string
	tempDir string
}

func NewFFprobe(path string) (*FFprobe, error) {
	if path == "" {
		path = "ffprobe"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolNotFound, err)
	}
	return &FFprobe{path: resolved, tempDir: os.TempDir()}, nil
}

func (p *FFprobe) Name() string { return "ffprobe" }

type ffprobeOutput struct {
	Streams []struct {
		CodecType     string `json:"codec_type"`
		CodecName     string `json:"codec_name"`
		SampleRate    string `json:"sample_rate"`
		Channels      int    `json:"channels"`
		BitsPerSample string `json:"bits_per_raw_sample"`
	} `json:"streams"`
	Format struct {
		Duration string            `json:"duration"`
		BitRate  string            `json:"bit_rate"`
		Name     string            `json:"format_name"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

func (p *FFprobe) Extract(ctx context.Context, src Source) (*Metadata, error) {
	path := src.Path
	if path == "" {
		tmp, err := p.spool(src)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp)
		path = tmp
	}

	cmd := exec.CommandContext(ctx, p.path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe failed: %v", ErrCorrupted, err)
	}
	return parseFFprobe(output)
}

func (p *FFprobe) spool(src Source) (string, error) {
	if err := src.rewind(); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(p.tempDir, "trackdrop-probe-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, src.File); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("spool audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func parseFFprobe(output []byte) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	md := &Metadata{Extractor: "ffprobe"}
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		md.Duration = d
	}
	if b, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		md.BitRate = b
	}
	md.Format = strings.Split(probe.Format.Name, ",")[0]

	hasAudio := false
	for _, stream := range probe.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		hasAudio = true
		md.Codec = stream.CodecName
		md.Channels = stream.Channels
		if bits, err := strconv.Atoi(stream.BitsPerSample); err == nil {
			md.BitDepth = bits
		}
		if sr, err := strconv.Atoi(stream.SampleRate); err == nil {
			md.SampleRate = sr
		}
		break
	}
	if !hasAudio {
		return nil, fmt.Errorf("%w: no audio stream", ErrCorrupted)
	}

	tags := lowerKeys(probe.Format.Tags)
	md.Tags = Tags{
		Title:       tags["title"],
		Artist:      tags["artist"],
		AlbumArtist: tags["album_artist"],
		Album:       tags["album"],
		Genre:       tags["genre"],
	}
	if y, err := strconv.Atoi(firstN(tags["date"], 4)); err == nil {
		md.Tags.Year = y
	}
	if tr, err := strconv.Atoi(strings.Split(tags["track"], "/")[0]); err == nil {
		md.Tags.Track = tr
	}
	return md, nil
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

func firstN(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
