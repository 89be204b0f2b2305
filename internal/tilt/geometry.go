package tilt

import (
	"fmt"
	"math"
)

// Size is a width/height pair in points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are finite and strictly positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0 &&
		!math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Ratio is width divided by height.
func (s Size) Ratio() float64 { return s.Width / s.Height }

func (s Size) String() string { return fmt.Sprintf("%gx%g", s.Width, s.Height) }

// Point is a 2D scroll position (top-left of the viewport within the content).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AspectMode selects the single axis eligible for tilt panning.
type AspectMode int

const (
	AspectNone AspectMode = iota
	AspectHorizontal
	AspectVertical
)

func (m AspectMode) String() string {
	switch m {
	case AspectHorizontal:
		return "horizontal"
	case AspectVertical:
		return "vertical"
	default:
		return "none"
	}
}

// MarshalText encodes the mode by name so snapshots stay readable on the wire.
func (m AspectMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText accepts the names produced by MarshalText.
func (m *AspectMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "horizontal":
		*m = AspectHorizontal
	case "vertical":
		*m = AspectVertical
	case "none", "":
		*m = AspectNone
	default:
		return fmt.Errorf("unknown aspect mode %q", string(b))
	}
	return nil
}

// ClassifyAspect picks the pan axis for an image shown in viewport.
// A nil image means no image is loaded.
func ClassifyAspect(viewport Size, image *Size) AspectMode {
	if image == nil || !image.Valid() || !viewport.Valid() {
		return AspectNone
	}
	if image.Ratio() > viewport.Ratio() {
		return AspectHorizontal
	}
	return AspectVertical
}

// FillContentSize scales natural so it covers viewport on both axes.
func FillContentSize(viewport, natural Size) Size {
	if !viewport.Valid() || !natural.Valid() {
		return Size{}
	}
	scale := math.Max(viewport.Width/natural.Width, viewport.Height/natural.Height)
	return Size{Width: natural.Width * scale, Height: natural.Height * scale}
}

// contentSlack absorbs float rounding in FillContentSize when comparing
// content against the viewport.
const contentSlack = 1e-9

// Geometry is the derived pan layout for one viewport/image pair.
type Geometry struct {
	Viewport  Size       `json:"viewport"`
	Content   Size       `json:"content"`
	Mode      AspectMode `json:"mode"`
	MaxOffset float64    `json:"max_offset"`
}

// NewGeometry classifies and sizes the content for viewport and image.
//
// An absent image yields a None geometry with a nil error. Non-positive
// dimensions yield a None geometry and ErrInvalidGeometry.
func NewGeometry(viewport Size, image *Size) (Geometry, error) {
	g := Geometry{Viewport: viewport}
	if image == nil {
		return g, nil
	}
	if !viewport.Valid() {
		return g, fmt.Errorf("%w: viewport %s", ErrInvalidGeometry, viewport)
	}
	if !image.Valid() {
		return g, fmt.Errorf("%w: image %s", ErrInvalidGeometry, *image)
	}

	return newGeometryWithContent(viewport, FillContentSize(viewport, *image), ClassifyAspect(viewport, image))
}

func newGeometryWithContent(viewport, content Size, mode AspectMode) (Geometry, error) {
	g := Geometry{Viewport: viewport, Content: content}
	if content.Width+contentSlack < viewport.Width || content.Height+contentSlack < viewport.Height {
		return Geometry{Viewport: viewport}, fmt.Errorf("%w: content %s smaller than viewport %s", ErrInvalidGeometry, content, viewport)
	}

	g.Mode = mode
	switch mode {
	case AspectHorizontal:
		g.MaxOffset = math.Max(0, content.Width-viewport.Width)
	case AspectVertical:
		g.MaxOffset = math.Max(0, content.Height-viewport.Height)
	}
	return g, nil
}

// Resync projects o onto this geometry's active axis and clamps it.
// Offsets on a different axis restart at zero.
func (g Geometry) Resync(o AxisOffset) AxisOffset {
	if g.Mode == AspectNone {
		return AxisOffset{}
	}
	if o.Mode != g.Mode {
		return AxisOffset{Mode: g.Mode}
	}
	return AxisOffset{Mode: g.Mode, Value: clamp(o.Value, 0, g.MaxOffset)}
}

// Project converts an arbitrary point into a valid single-axis offset.
func (g Geometry) Project(p Point) AxisOffset {
	switch g.Mode {
	case AspectHorizontal:
		return AxisOffset{Mode: g.Mode, Value: clamp(p.X, 0, g.MaxOffset)}
	case AspectVertical:
		return AxisOffset{Mode: g.Mode, Value: clamp(p.Y, 0, g.MaxOffset)}
	default:
		return AxisOffset{}
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
