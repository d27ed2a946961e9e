package metadata

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const MaxCoverDimension = 6000

var coverFormats = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// CheckCover reads only the image header. It verifies the declared MIME type
// matches the real format and the dimensions are within bounds.
func CheckCover(r io.Reader, declaredType string) (*CoverInfo, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("%w: cover is not a decodable image", ErrCorrupted)
	}
	mime, ok := coverFormats[format]
	if !ok {
		return nil, fmt.Errorf("%w: cover format %s", ErrUnsupported, format)
	}
	if declared := NormalizeContentType(declaredType); declared != "" && declared != mime && !(declared == "image/jpg" && mime == "image/jpeg") {
		return nil, fmt.Errorf("%w: cover declared %s but is %s", ErrUnsupported, declared, mime)
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	return &CoverInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// InspectCover fully decodes the cover, honouring EXIF orientation, and
// reports its displayed dimensions.
func InspectCover(r io.Reader) (*CoverInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read cover: %w", err)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: cover is not a decodable image", ErrCorrupted)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	b := img.Bounds()
	if err := checkDimensions(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	return &CoverInfo{Width: b.Dx(), Height: b.Dy(), Format: format}, nil
}

func checkDimensions(w, h int) error {
	if w < 1 || h < 1 {
		return fmt.Errorf("%w: cover has no pixels", ErrCorrupted)
	}
	if w > MaxCoverDimension || h > MaxCoverDimension {
		return fmt.Errorf("%w: cover %dx%d exceeds %dpx", ErrUnsupported, w, h, MaxCoverDimension)
	}
	return nil
}
