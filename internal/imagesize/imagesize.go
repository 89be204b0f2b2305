// Package imagesize reads an image's natural size from its header.
package imagesize

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"tiltpan/internal/tilt"
)

// Read decodes only the header of an image stream and returns its size and
// format name (gif, jpeg, png, bmp, tiff or webp).
func Read(r io.Reader) (tilt.Size, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return tilt.Size{}, "", fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return tilt.Size{}, format, fmt.Errorf("%w: %s image is %dx%d", tilt.ErrInvalidGeometry, format, cfg.Width, cfg.Height)
	}
	return tilt.Size{Width: float64(cfg.Width), Height: float64(cfg.Height)}, format, nil
}

// FromFile is Read on the file at path.
func FromFile(path string) (tilt.Size, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return tilt.Size{}, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return Read(f)
}
