package tilt

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestClassifyAspect(t *testing.T) {
	cases := []struct {
		name     string
		viewport Size
		image    *Size
		want     AspectMode
	}{
		{"no image", Size{300, 500}, nil, AspectNone},
		{"wide image in portrait frame", Size{300, 500}, &Size{1000, 500}, AspectHorizontal},
		{"tall image in portrait frame", Size{300, 500}, &Size{300, 1000}, AspectVertical},
		{"equal ratios", Size{200, 100}, &Size{400, 200}, AspectVertical},
		{"zero-height image", Size{300, 500}, &Size{100, 0}, AspectNone},
		{"zero viewport", Size{0, 0}, &Size{100, 100}, AspectNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyAspect(tc.viewport, tc.image); got != tc.want {
				t.Fatalf("ClassifyAspect(%v, %v) = %v, want %v", tc.viewport, tc.image, got, tc.want)
			}
		})
	}
}

func TestClassifyAspect_RatioProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		vp := Size{Width: 1 + rng.Float64()*2000, Height: 1 + rng.Float64()*2000}
		img := Size{Width: 1 + rng.Float64()*5000, Height: 1 + rng.Float64()*5000}

		want := AspectVertical
		if img.Width/img.Height > vp.Width/vp.Height {
			want = AspectHorizontal
		}
		if got := ClassifyAspect(vp, &img); got != want {
			t.Fatalf("viewport %v image %v: got %v, want %v", vp, img, got, want)
		}
	}
}

func TestFillContentSize_CoversViewport(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 2000; i++ {
		vp := Size{Width: 1 + rng.Float64()*2000, Height: 1 + rng.Float64()*2000}
		img := Size{Width: 1 + rng.Float64()*5000, Height: 1 + rng.Float64()*5000}

		c := FillContentSize(vp, img)
		if c.Width+1e-6 < vp.Width || c.Height+1e-6 < vp.Height {
			t.Fatalf("content %v does not cover viewport %v", c, vp)
		}
		// One axis matches the viewport exactly (fill, not overscale).
		if math.Abs(c.Width-vp.Width) > 1e-6 && math.Abs(c.Height-vp.Height) > 1e-6 {
			t.Fatalf("content %v overscaled for viewport %v", c, vp)
		}
	}
}

func TestNewGeometry_Scenario1(t *testing.T) {
	img := Size{1000, 500}
	g, err := NewGeometry(Size{300, 500}, &img)
	if err != nil {
		t.Fatalf("NewGeometry: %v", err)
	}
	if g.Mode != AspectHorizontal {
		t.Fatalf("mode = %v, want horizontal", g.Mode)
	}
	if g.Content != (Size{1000, 500}) {
		t.Fatalf("content = %v, want 1000x500", g.Content)
	}
	if g.MaxOffset != 700 {
		t.Fatalf("max offset = %v, want 700", g.MaxOffset)
	}
}

func TestNewGeometry_Vertical(t *testing.T) {
	img := Size{600, 2000}
	g, err := NewGeometry(Size{300, 500}, &img)
	if err != nil {
		t.Fatalf("NewGeometry: %v", err)
	}
	if g.Mode != AspectVertical {
		t.Fatalf("mode = %v, want vertical", g.Mode)
	}
	// scale = max(300/600, 500/2000) = 0.5
	if g.Content != (Size{300, 1000}) || g.MaxOffset != 500 {
		t.Fatalf("got content %v max %v, want 300x1000 max 500", g.Content, g.MaxOffset)
	}
}

func TestNewGeometry_Invalid(t *testing.T) {
	g, err := NewGeometry(Size{300, 500}, nil)
	if err != nil || g.Mode != AspectNone || g.MaxOffset != 0 {
		t.Fatalf("absent image: got %+v, %v", g, err)
	}

	bad := Size{-1, 50}
	g, err = NewGeometry(Size{300, 500}, &bad)
	if !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry, got %v", err)
	}
	if g.Mode != AspectNone {
		t.Fatalf("invalid image must give None, got %v", g.Mode)
	}

	img := Size{100, 100}
	if _, err := NewGeometry(Size{0, 500}, &img); !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry for zero viewport, got %v", err)
	}
}

func TestGeometry_Resync(t *testing.T) {
	g := Geometry{Mode: AspectHorizontal, MaxOffset: 100}

	if got := g.Resync(AxisOffset{Mode: AspectHorizontal, Value: 250}); got.Value != 100 {
		t.Fatalf("shrunk content should clamp to 100, got %v", got.Value)
	}
	if got := g.Resync(AxisOffset{Mode: AspectHorizontal, Value: 40}); got.Value != 40 {
		t.Fatalf("in-range offset should survive, got %v", got.Value)
	}
	if got := g.Resync(AxisOffset{Mode: AspectVertical, Value: 40}); got != (AxisOffset{Mode: AspectHorizontal}) {
		t.Fatalf("axis switch should restart at 0, got %+v", got)
	}
	if got := (Geometry{}).Resync(AxisOffset{Mode: AspectHorizontal, Value: 40}); got != (AxisOffset{}) {
		t.Fatalf("none geometry should reset offset, got %+v", got)
	}
}

func TestAxisOffset_PointPinsInactiveAxis(t *testing.T) {
	if p := (AxisOffset{Mode: AspectHorizontal, Value: 12}).Point(); p != (Point{X: 12}) {
		t.Fatalf("horizontal point = %+v", p)
	}
	if p := (AxisOffset{Mode: AspectVertical, Value: 12}).Point(); p != (Point{Y: 12}) {
		t.Fatalf("vertical point = %+v", p)
	}
	if p := (AxisOffset{Value: 12}).Point(); p != (Point{}) {
		t.Fatalf("none point = %+v", p)
	}
}
