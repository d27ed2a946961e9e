package metadata

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// parseMP4 reads the movie header (moov/mvhd) for the presentation duration.
func parseMP4(ctx context.Context, r io.ReadSeeker, size int64) (*Metadata, error) {
	moovStart, moovEnd, err := findBox(ctx, r, 0, size, "moov")
	if err != nil {
		return nil, err
	}
	mvhdStart, _, err := findBox(ctx, r, moovStart, moovEnd, "mvhd")
	if err != nil {
		return nil, err
	}

	if _, err := r.Seek(mvhdStart, io.SeekStart); err != nil {
		return nil, err
	}
	var vf [4]byte
	if _, err := io.ReadFull(r, vf[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated mvhd", ErrCorrupted)
	}

	var timescale, duration uint64
	switch vf[0] {
	case 0:
		var b [16]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated mvhd", ErrCorrupted)
		}
		timescale = uint64(binary.BigEndian.Uint32(b[8:12]))
		duration = uint64(binary.BigEndian.Uint32(b[12:16]))
	case 1:
		var b [28]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated mvhd", ErrCorrupted)
		}
		timescale = uint64(binary.BigEndian.Uint32(b[16:20]))
		duration = binary.BigEndian.Uint64(b[20:28])
	default:
		return nil, fmt.Errorf("%w: unknown mvhd version %d", ErrCorrupted, vf[0])
	}
	if timescale == 0 {
		return nil, fmt.Errorf("%w: zero timescale", ErrCorrupted)
	}

	md := &Metadata{Codec: "aac", Duration: float64(duration) / float64(timescale)}
	md.BitRate = bitRateFor(size, md.Duration)
	return md, nil
}

// findBox scans sibling boxes in [start, end) and returns the payload range
// of the first box of the given type. A box may not extend past end.
func findBox(ctx context.Context, r io.ReadSeeker, start, end int64, boxType string) (int64, int64, error) {
	if end <= 0 {
		return 0, 0, fmt.Errorf("%w: unknown container size", ErrCorrupted)
	}
	pos := start
	for pos+8 <= end {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return 0, 0, err
		}
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			break
		}
		boxSize := int64(binary.BigEndian.Uint32(hdr[0:4]))
		headerLen := int64(8)
		switch boxSize {
		case 1:
			var ext [8]byte
			if _, err := io.ReadFull(r, ext[:]); err != nil {
				return 0, 0, fmt.Errorf("%w: truncated box header", ErrCorrupted)
			}
			boxSize = int64(binary.BigEndian.Uint64(ext[:]))
			headerLen = 16
		case 0:
			boxSize = end - pos
		}
		if boxSize < headerLen || boxSize > end-pos {
			return 0, 0, fmt.Errorf("%w: invalid %q box size %d", ErrCorrupted, hdr[4:8], boxSize)
		}
		if string(hdr[4:8]) == boxType {
			return pos + headerLen, pos + boxSize, nil
		}
		pos += boxSize
	}
	return 0, 0, fmt.Errorf("%w: %s box not found", ErrCorrupted, boxType)
}
