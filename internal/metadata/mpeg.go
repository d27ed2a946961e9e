package metadata

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

const mpegScanWindow = 64 * 1024

var (
	mpeg1L3Bitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mpeg2L3Bitrates = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}

	mpegSampleRates = map[int][3]int{
		1:  {44100, 48000, 32000},
		2:  {22050, 24000, 16000},
		25: {11025, 12000, 8000},
	}
)

type mpegFrame struct {
	version    int
	bitrate    int
	sampleRate int
	channels   int
	length     int
	samples    int
}

func parseMPEGHeader(b []byte) (mpegFrame, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return mpegFrame{}, false
	}

	var version int
	switch (b[1] >> 3) & 0x03 {
	case 3:
		version = 1
	case 2:
		version = 2
	case 0:
		version = 25
	default:
		return mpegFrame{}, false
	}
	if (b[1]>>1)&0x03 != 1 {
		return mpegFrame{}, false // only Layer III
	}

	bitrateIdx := int(b[2] >> 4)
	srIdx := int((b[2] >> 2) & 0x03)
	if srIdx == 3 || bitrateIdx == 0 || bitrateIdx == 15 {
		return mpegFrame{}, false
	}
	padding := int((b[2] >> 1) & 0x01)

	f := mpegFrame{version: version, sampleRate: mpegSampleRates[version][srIdx], channels: 2}
	if b[3]>>6 == 3 {
		f.channels = 1
	}
	if version == 1 {
		f.bitrate = mpeg1L3Bitrates[bitrateIdx] * 1000
		f.samples = 1152
		f.length = 144*f.bitrate/f.sampleRate + padding
	} else {
		f.bitrate = mpeg2L3Bitrates[bitrateIdx] * 1000
		f.samples = 576
		f.length = 72*f.bitrate/f.sampleRate + padding
	}
	return f, f.length > 4
}

func id3v2Size(hdr []byte) int64 {
	if len(hdr) < 10 || string(hdr[0:3]) != "ID3" {
		return 0
	}
	size := int64(hdr[6]&0x7f)<<21 | int64(hdr[7]&0x7f)<<14 | int64(hdr[8]&0x7f)<<7 | int64(hdr[9]&0x7f)
	size += 10
	if hdr[5]&0x10 != 0 {
		size += 10
	}
	return size
}

// parseMPEG locates the first pair of consecutive Layer III frames and
// derives duration from a Xing/Info header when present, otherwise from
// the constant bitrate.
func parseMPEG(ctx context.Context, r io.ReadSeeker, size int64) (*Metadata, error) {
	var hdr [10]byte
	n, _ := io.ReadFull(r, hdr[:])
	start := id3v2Size(hdr[:n])
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}

	buf := make([]byte, mpegScanWindow)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: empty audio stream", ErrCorrupted)
	}
	buf = buf[:n]

	for off := 0; off+4 <= len(buf); off++ {
		if off%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		f, ok := parseMPEGHeader(buf[off:])
		if !ok {
			continue
		}
		next := off + f.length
		if next+4 > len(buf) {
			continue
		}
		if _, ok := parseMPEGHeader(buf[next:]); !ok {
			continue
		}

		md := &Metadata{
			Codec:      "mp3",
			SampleRate: f.sampleRate,
			Channels:   f.channels,
			BitRate:    int64(f.bitrate),
		}
		if frames := xingFrames(buf[off:], f); frames > 0 {
			md.Duration = float64(frames) * float64(f.samples) / float64(f.sampleRate)
			md.BitRate = bitRateFor(size-start-int64(off), md.Duration)
			return md, nil
		}
		if audioBytes := size - start - int64(off); audioBytes > 0 {
			md.Duration = float64(audioBytes*8) / float64(f.bitrate)
		}
		return md, nil
	}
	return nil, fmt.Errorf("%w: no MPEG audio frames found", ErrCorrupted)
}

func xingFrames(frame []byte, f mpegFrame) uint32 {
	var side int
	switch {
	case f.version == 1 && f.channels == 1:
		side = 17
	case f.version == 1:
		side = 32
	case f.channels == 1:
		side = 9
	default:
		side = 17
	}
	pos := 4 + side
	if len(frame) < pos+12 {
		return 0
	}
	id := string(frame[pos : pos+4])
	if id != "Xing" && id != "Info" {
		return 0
	}
	flags := binary.BigEndian.Uint32(frame[pos+4 : pos+8])
	if flags&0x1 == 0 {
		return 0
	}
	return binary.BigEndian.Uint32(frame[pos+8 : pos+12])
}
