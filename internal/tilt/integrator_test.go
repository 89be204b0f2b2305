package tilt

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestRotationRate_OrientationSigns(t *testing.T) {
	rate := AngularRate{X: 0.7, Y: 1.5, Z: -2}

	cases := []struct {
		o    Orientation
		want float64
	}{
		{OrientationPortrait, 1.5},
		{OrientationPortraitUpsideDown, -1.5},
		{OrientationLandscapeLeft, 1.5},
		{OrientationLandscapeRight, -1.5},
		{OrientationFaceUp, 0},
		{OrientationFaceDown, 0},
		{OrientationUnknown, 0},
		{Orientation(42), 0},
	}
	for _, tc := range cases {
		if got := RotationRate(Sample{Rate: rate, Orientation: tc.o}); got != tc.want {
			t.Errorf("RotationRate(%v) = %v, want %v", tc.o, got, tc.want)
		}
	}
}

func TestRotationRate_OppositePairs(t *testing.T) {
	pairs := [][2]Orientation{
		{OrientationPortrait, OrientationPortraitUpsideDown},
		{OrientationLandscapeLeft, OrientationLandscapeRight},
	}
	g := Geometry{Mode: AspectHorizontal, MaxOffset: 1e6}
	start := AxisOffset{Mode: AspectHorizontal, Value: 5e5}
	p := DefaultParams()

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		rate := AngularRate{X: rng.NormFloat64(), Y: rng.NormFloat64() * 3, Z: rng.NormFloat64()}
		for _, pair := range pairs {
			a, _ := Step(g, start, Sample{Rate: rate, Orientation: pair[0]}, p)
			b, _ := Step(g, start, Sample{Rate: rate, Orientation: pair[1]}, p)
			da := a.Value - start.Value
			db := b.Value - start.Value
			if math.Abs(da+db) > 1e-9 {
				t.Fatalf("%v/%v with %+v: deltas %v and %v are not opposite", pair[0], pair[1], rate, da, db)
			}
		}
	}
}

func TestIntegrate_BelowThresholdIsNoop(t *testing.T) {
	p := DefaultParams()
	for _, r := range []float64{0, 0.1, -0.1, 0.2499, -0.2499} {
		next, ok := Integrate(50, 200, r, p)
		if ok || next != 50 {
			t.Fatalf("rate %v: got (%v, %v), want (50, false)", r, next, ok)
		}
	}
}

func TestIntegrate_Scenarios(t *testing.T) {
	p := DefaultParams()

	// Scenario 3
	next, ok := Integrate(50, 200, 1.0, p)
	if !ok || next != 35 {
		t.Fatalf("rate 1.0 from 50: got (%v, %v), want (35, true)", next, ok)
	}

	// Scenario 4: extreme negative rate pushes offset towards max, clamped.
	next, ok = Integrate(50, 200, -20, p)
	if !ok || next != 200 {
		t.Fatalf("rate -20 from 50: got (%v, %v), want (200, true)", next, ok)
	}

	// Extreme positive rate clamps at zero.
	next, ok = Integrate(50, 200, 20, p)
	if !ok || next != 0 {
		t.Fatalf("rate 20 from 50: got (%v, %v), want (0, true)", next, ok)
	}

	// Exactly at the threshold is not noise.
	if _, ok := Integrate(50, 200, 0.25, p); !ok {
		t.Fatalf("rate 0.25 should pass the threshold")
	}
}

func TestIntegrate_ClampProperty(t *testing.T) {
	p := DefaultParams()
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 5000; i++ {
		maxOffset := rng.Float64() * 3000
		current := rng.Float64() * maxOffset
		rate := rng.NormFloat64() * 30

		next, _ := Integrate(current, maxOffset, rate, p)
		if next < 0 || next > maxOffset {
			t.Fatalf("Integrate(%v, %v, %v) = %v outside [0, %v]", current, maxOffset, rate, next, maxOffset)
		}
	}
}

func TestIntegrate_NaNRateIgnored(t *testing.T) {
	if next, ok := Integrate(10, 20, math.NaN(), DefaultParams()); ok || next != 10 {
		t.Fatalf("NaN rate: got (%v, %v)", next, ok)
	}
}

func TestStep_InactiveAxisStaysZero(t *testing.T) {
	p := DefaultParams()
	g := Geometry{Mode: AspectVertical, MaxOffset: 300}
	next, changed := Step(g, AxisOffset{Mode: AspectVertical, Value: 100}, Sample{
		Rate:        AngularRate{X: 9, Y: -2, Z: 9},
		Orientation: OrientationPortrait,
	}, p)
	if !changed {
		t.Fatalf("expected a change")
	}
	pt := next.Point()
	if pt.X != 0 || pt.Y != 130 {
		t.Fatalf("got %+v, want {0 130}", pt)
	}
}

func TestStep_Drops(t *testing.T) {
	p := DefaultParams()
	start := AxisOffset{Mode: AspectHorizontal, Value: 50}
	g := Geometry{Mode: AspectHorizontal, MaxOffset: 200}

	// Scenario 2: below threshold.
	if _, changed := Step(g, start, Sample{Rate: AngularRate{Y: 0.1}, Orientation: OrientationPortrait}, p); changed {
		t.Fatalf("0.1 rad/s must be noise")
	}
	// Scenario 5: unrecognized orientation.
	if _, changed := Step(g, start, Sample{Rate: AngularRate{Y: 5}, Orientation: OrientationFaceUp}, p); changed {
		t.Fatalf("unrecognized orientation must not move the offset")
	}
	// Sample error.
	if _, changed := Step(g, start, Sample{Rate: AngularRate{Y: 5}, Orientation: OrientationPortrait, Err: errors.New("boom")}, p); changed {
		t.Fatalf("errored sample must be dropped")
	}
	// No geometry.
	if _, changed := Step(Geometry{}, AxisOffset{}, Sample{Rate: AngularRate{Y: 5}, Orientation: OrientationPortrait}, p); changed {
		t.Fatalf("none geometry must suppress tilt")
	}
	// Already at the edge: clamped result equals current.
	edge := AxisOffset{Mode: AspectHorizontal}
	if _, changed := Step(g, edge, Sample{Rate: AngularRate{Y: 3}, Orientation: OrientationPortrait}, p); changed {
		t.Fatalf("clamped no-op at the edge should not report a change")
	}
}

func TestParseOrientation(t *testing.T) {
	cases := map[string]Orientation{
		"portrait":             OrientationPortrait,
		"Portrait":             OrientationPortrait,
		"portrait_upside_down": OrientationPortraitUpsideDown,
		"portraitUpsideDown":   OrientationPortraitUpsideDown,
		"landscape-left":       OrientationLandscapeLeft,
		"LANDSCAPE_RIGHT":      OrientationLandscapeRight,
		"face_up":              OrientationFaceUp,
		"":                     OrientationUnknown,
	}
	for in, want := range cases {
		got, err := ParseOrientation(in)
		if err != nil || got != want {
			t.Errorf("ParseOrientation(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	if _, err := ParseOrientation("sideways"); !errors.Is(err, ErrUnknownOrientation) {
		t.Fatalf("expected ErrUnknownOrientation, got %v", err)
	}
}
