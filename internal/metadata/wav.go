package metadata

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// maxFmtChunk covers WAVE_FORMAT_EXTENSIBLE (40 bytes) with room for
// vendor extensions. Only the first 16 bytes are ever read.
const maxFmtChunk = 1024

func parseWAV(ctx context.Context, r io.ReadSeeker, size int64) (*Metadata, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("%w: short RIFF header", ErrCorrupted)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrCorrupted)
	}

	var (
		md       = &Metadata{}
		byteRate uint32
		haveFmt  bool
		pos      = int64(len(riff))
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("%w: missing data chunk", ErrCorrupted)
		}
		pos += int64(len(hdr))
		id := string(hdr[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		remaining := size - pos

		switch id {
		case "fmt ":
			if chunkSize < 16 || chunkSize > maxFmtChunk || chunkSize > remaining {
				return nil, fmt.Errorf("%w: invalid fmt chunk size %d", ErrCorrupted, chunkSize)
			}
			var buf [16]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return nil, fmt.Errorf("%w: truncated fmt chunk", ErrCorrupted)
			}
			audioFormat := binary.LittleEndian.Uint16(buf[0:2])
			md.Channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			md.SampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			byteRate = binary.LittleEndian.Uint32(buf[8:12])
			md.BitDepth = int(binary.LittleEndian.Uint16(buf[14:16]))
			md.Codec = wavCodec(audioFormat, md.BitDepth)
			md.BitRate = int64(byteRate) * 8
			haveFmt = true

			skip := chunkSize - int64(len(buf)) + chunkSize%2
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return nil, err
			}
			pos += chunkSize + chunkSize%2
		case "data":
			if !haveFmt || byteRate == 0 {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrCorrupted)
			}
			// streaming writers leave the size unset; count what is actually there
			if chunkSize > remaining {
				chunkSize = max(remaining, 0)
			}
			md.Duration = float64(chunkSize) / float64(byteRate)
			return md, nil
		default:
			if chunkSize > remaining {
				return nil, fmt.Errorf("%w: %q chunk overruns file", ErrCorrupted, id)
			}
			if _, err := r.Seek(chunkSize+chunkSize%2, io.SeekCurrent); err != nil {
				return nil, err
			}
			pos += chunkSize + chunkSize%2
		}
	}
}

func wavCodec(audioFormat uint16, bits int) string {
	switch audioFormat {
	case 1:
		return fmt.Sprintf("pcm_s%dle", bits)
	case 3:
		return fmt.Sprintf("pcm_f%dle", bits)
	case 6:
		return "pcm_alaw"
	case 7:
		return "pcm_mulaw"
	}
	return "wav"
}
