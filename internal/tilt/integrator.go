package tilt

import (
	"math"
	"time"
)

// Default controller tuning.
const (
	DefaultRotationMinimumThreshold = 0.25                   // rad/s below which a sample is noise
	DefaultRotationFactor           = 15.0                   // points of offset per rad/s
	DefaultSampleInterval           = time.Second / 500      // nominal sampling interval (hint)
	DefaultAnimationDuration        = 300 * time.Millisecond // offset animation length
)

// Params contains the tunable constants of the controller.
type Params struct {
	// RotationMinimumThreshold is the dead band on |rate| (rad/s).
	RotationMinimumThreshold float64

	// RotationFactor converts rad/s into a pixel delta.
	RotationFactor float64

	// SampleInterval is requested from samplers when monitoring starts.
	SampleInterval time.Duration

	// Animation is attached to every tilt-driven offset update.
	Animation AnimationSpec
}

// DefaultParams returns the stock controller tuning.
func DefaultParams() Params {
	return Params{
		RotationMinimumThreshold: DefaultRotationMinimumThreshold,
		RotationFactor:           DefaultRotationFactor,
		SampleInterval:           DefaultSampleInterval,
		Animation:                DefaultAnimation(),
	}
}

// AxisOffset is a scroll offset along the single active pan axis.
// The zero value is the None variant, which always projects to the origin.
type AxisOffset struct {
	Mode  AspectMode
	Value float64
}

// Point expands the offset to 2D with the inactive axis pinned to zero.
func (o AxisOffset) Point() Point {
	switch o.Mode {
	case AspectHorizontal:
		return Point{X: o.Value}
	case AspectVertical:
		return Point{Y: o.Value}
	default:
		return Point{}
	}
}

// Integrate applies one extracted rotation rate to the current active-axis
// offset. ok is false when the rate is inside the dead band; next is always
// within [0, maxOffset].
func Integrate(current, maxOffset, rate float64, p Params) (next float64, ok bool) {
	if math.IsNaN(rate) || math.Abs(rate) < p.RotationMinimumThreshold {
		return current, false
	}
	delta := rate * p.RotationFactor
	return clamp(current-delta, 0, math.Max(0, maxOffset)), true
}

// Step runs the extractor and integrator for one sample against g.
// It returns the new offset and whether it differs from current.
func Step(g Geometry, current AxisOffset, s Sample, p Params) (AxisOffset, bool) {
	if g.Mode == AspectNone || s.Err != nil {
		return current, false
	}
	current = g.Resync(current)

	next, ok := Integrate(current.Value, g.MaxOffset, RotationRate(s), p)
	if !ok || next == current.Value {
		return current, false
	}
	return AxisOffset{Mode: g.Mode, Value: next}, true
}
