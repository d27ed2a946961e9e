package metadata

import (
	"context"
	"fmt"
	"io"

	"github.com/go-flac/go-flac"
)

// flacHeaderLimit bounds how much of the file go-flac buffers. Metadata
// blocks, including embedded artwork, sit at the front of the stream.
const flacHeaderLimit = 16 << 20

func parseFLAC(ctx context.Context, r io.ReadSeeker, size int64) (*Metadata, error) {
	f, err := flac.ParseBytes(io.LimitReader(ctxReader{ctx: ctx, r: r}, flacHeaderLimit))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	info, err := f.GetStreamInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if info.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate", ErrCorrupted)
	}

	md := &Metadata{
		Codec:      "flac",
		SampleRate: info.SampleRate,
		Channels:   info.ChannelCount,
		BitDepth:   info.BitDepth,
		Duration:   float64(info.SampleCount) / float64(info.SampleRate),
	}
	md.BitRate = bitRateFor(size, md.Duration)
	return md, nil
}

// ctxReader stops a long read once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
