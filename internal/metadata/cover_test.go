package metadata

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCheckCover(t *testing.T) {
	data := pngFixture(t, 64, 32)

	info, err := CheckCover(bytes.NewReader(data), "image/png")
	require.NoError(t, err)
	assert.Equal(t, &CoverInfo{Width: 64, Height: 32, Format: "png"}, info)

	_, err = CheckCover(bytes.NewReader(data), "image/jpeg")
	assert.ErrorIs(t, err, ErrUnsupported, "declared type must match content")

	_, err = CheckCover(bytes.NewReader([]byte("not an image")), "image/png")
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestInspectCover(t *testing.T) {
	info, err := InspectCover(bytes.NewReader(pngFixture(t, 10, 20)))
	require.NoError(t, err)
	assert.Equal(t, 10, info.Width)
	assert.Equal(t, 20, info.Height)
	assert.Equal(t, "png", info.Format)

	_, err = InspectCover(bytes.NewReader([]byte{0x89, 'P', 'N', 'G'}))
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestCheckDimensions(t *testing.T) {
	assert.NoError(t, checkDimensions(1, 1))
	assert.ErrorIs(t, checkDimensions(0, 5), ErrCorrupted)
	assert.ErrorIs(t, checkDimensions(MaxCoverDimension+1, 5), ErrUnsupported)
}
