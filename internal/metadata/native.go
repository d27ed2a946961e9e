package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dhowden/tag"
)

type parseFunc func(ctx context.Context, r io.ReadSeeker, size int64) (*Metadata, error)

// Native reads tags with dhowden/tag and technical info with in-process
// container parsers. It needs no external binaries.
type Native struct {
	parsers map[string]parseFunc
}

func NewNative() *Native {
	return &Native{
		parsers: map[string]parseFunc{
			"mp3":  parseMPEG,
			"wav":  parseWAV,
			"flac": parseFLAC,
			"m4a":  parseMP4,
		},
	}
}

func (n *Native) Name() string { return "native" }

func (n *Native) Extract(ctx context.Context, src Source) (*Metadata, error) {
	format := FormatFor(src.ContentType)
	parse, ok := n.parsers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, src.ContentType)
	}

	if err := src.rewind(); err != nil {
		return nil, err
	}
	md, err := parse(ctx, src.File, src.Size)
	if err != nil {
		return nil, err
	}
	md.Format = format
	md.Extractor = n.Name()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := src.rewind(); err != nil {
		return nil, err
	}
	tags, err := readTags(src.File)
	if err != nil && !errors.Is(err, tag.ErrNoTagsFound) {
		// tags are optional; a damaged tag block does not void the parsed result
		md.Degraded = true
	}
	md.Tags = tags
	return md, nil
}

func readTags(r io.ReadSeeker) (Tags, error) {
	m, err := tag.ReadFrom(r)
	if err != nil {
		return Tags{}, err
	}

	track, _ := m.Track()
	return Tags{
		Title:       m.Title(),
		Artist:      m.Artist(),
		AlbumArtist: m.AlbumArtist(),
		Album:       m.Album(),
		Genre:       m.Genre(),
		Year:        m.Year(),
		Track:       track,
		HasPicture:  m.Picture() != nil,
	}, nil
}

func bitRateFor(size int64, duration float64) int64 {
	if size <= 0 || duration <= 0 {
		return 0
	}
	return int64(float64(size*8) / duration)
}
