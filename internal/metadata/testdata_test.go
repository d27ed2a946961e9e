package metadata

import (
	"bytes"
	"encoding/binary"
)

// wavFixture builds a PCM WAV file holding seconds of silence.
func wavFixture(sampleRate, channels, bits int, seconds float64) []byte {
	byteRate := sampleRate * channels * bits / 8
	dataLen := int(float64(byteRate) * seconds)

	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+8+4+dataLen))
	b.WriteString("WAVE")

	// an unrelated chunk before fmt must be skipped
	b.WriteString("LIST")
	_ = binary.Write(&b, binary.LittleEndian, uint32(4))
	b.WriteString("INFO")

	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels*bits/8))
	_ = binary.Write(&b, binary.LittleEndian, uint16(bits))

	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	b.Write(make([]byte, dataLen))
	return b.Bytes()
}

// mp3Fixture builds frames MPEG-1 Layer III frames at 128 kbps / 44.1 kHz.
// Each frame is 417 bytes.
func mp3Fixture(frames int, withID3 bool) []byte {
	var b bytes.Buffer
	if withID3 {
		// ID3v2.3 header declaring a 20 byte tag body
		b.Write([]byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, 20})
		b.Write(make([]byte, 20))
	}
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x64})
	for i := 0; i < frames; i++ {
		b.Write(frame)
	}
	return b.Bytes()
}

// m4aFixture builds ftyp + moov/mvhd (version 0) with the given duration.
func m4aFixture(timescale, duration uint32) []byte {
	var b bytes.Buffer

	_ = binary.Write(&b, binary.BigEndian, uint32(16))
	b.WriteString("ftypM4A ")
	_ = binary.Write(&b, binary.BigEndian, uint32(0))

	mvhdBody := make([]byte, 100)
	binary.BigEndian.PutUint32(mvhdBody[12:16], timescale)
	binary.BigEndian.PutUint32(mvhdBody[16:20], duration)

	_ = binary.Write(&b, binary.BigEndian, uint32(8+8+len(mvhdBody)))
	b.WriteString("moov")
	_ = binary.Write(&b, binary.BigEndian, uint32(8+len(mvhdBody)))
	b.WriteString("mvhd")
	b.Write(mvhdBody)
	return b.Bytes()
}
