package imagesize

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"tiltpan/internal/tilt"
)

func TestRead_Formats(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 25))

	encoders := map[string]func(*bytes.Buffer) error{
		"png":  func(b *bytes.Buffer) error { return png.Encode(b, img) },
		"bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, img) },
		"tiff": func(b *bytes.Buffer) error { return tiff.Encode(b, img, nil) },
	}

	for format, enc := range encoders {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := enc(&buf); err != nil {
				t.Fatalf("encode: %v", err)
			}
			size, got, err := Read(&buf)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got != format {
				t.Fatalf("format = %q, want %q", got, format)
			}
			if size != (tilt.Size{Width: 40, Height: 25}) {
				t.Fatalf("size = %v, want 40x25", size)
			}
		})
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wide.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 1000, 500))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	size, format, err := FromFile(path)
	if err != nil || format != "png" || size != (tilt.Size{Width: 1000, Height: 500}) {
		t.Fatalf("FromFile = %v %q %v", size, format, err)
	}

	if _, _, err := FromFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestRead_NotAnImage(t *testing.T) {
	if _, _, err := Read(strings.NewReader("definitely not an image")); err == nil {
		t.Fatalf("expected error")
	}
}
