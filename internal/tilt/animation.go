package tilt

import (
	"fmt"
	"time"
)

// Curve is a named easing curve.
type Curve string

const (
	CurveLinear  Curve = "linear"
	CurveEaseOut Curve = "ease_out"
)

// Ease maps linear progress t in [0,1] through the curve.
func (c Curve) Ease(t float64) float64 {
	t = clamp(t, 0, 1)
	switch c {
	case CurveEaseOut:
		// cubic ease-out: fast start, decelerating into the target
		u := 1 - t
		return 1 - u*u*u
	default:
		return t
	}
}

// AnimationSpec describes how the view should move to a new offset.
type AnimationSpec struct {
	Duration time.Duration `json:"duration"`
	Curve    Curve         `json:"curve"`

	// BeginFromCurrentState starts from whatever the previous animation left
	// on screen instead of queuing behind it.
	BeginFromCurrentState bool `json:"begin_from_current_state"`

	// AllowUserInteraction keeps touch panning live while animating.
	AllowUserInteraction bool `json:"allow_user_interaction"`
}

// DefaultAnimation is the animation applied to tilt-driven offset changes.
func DefaultAnimation() AnimationSpec {
	return AnimationSpec{
		Duration:              DefaultAnimationDuration,
		Curve:                 CurveEaseOut,
		BeginFromCurrentState: true,
		AllowUserInteraction:  true,
	}
}

// Immediate is used when the offset must jump without animating (layout changes).
func Immediate() AnimationSpec {
	return AnimationSpec{Curve: CurveLinear, AllowUserInteraction: true}
}

func (a AnimationSpec) String() string {
	return fmt.Sprintf("%s/%s", a.Duration, a.Curve)
}

// Animator tracks the presented offset of a view running AnimationSpecs.
//
// Retarget never queues: a new target replaces the running animation, and
// with BeginFromCurrentState the new animation starts at the value currently
// presented. Animator is not safe for concurrent use.
type Animator struct {
	from, to Point
	start    time.Time
	spec     AnimationSpec
}

// NewAnimator returns an animator resting at p.
func NewAnimator(p Point) *Animator {
	return &Animator{from: p, to: p}
}

// Retarget starts animating towards target at time now.
func (a *Animator) Retarget(target Point, spec AnimationSpec, now time.Time) {
	if spec.BeginFromCurrentState {
		a.from = a.Value(now)
	} else {
		a.from = a.to
	}
	a.to = target
	a.start = now
	a.spec = spec
}

// Value returns the presented offset at time now.
func (a *Animator) Value(now time.Time) Point {
	if a.spec.Duration <= 0 || !now.Before(a.start.Add(a.spec.Duration)) {
		return a.to
	}
	elapsed := now.Sub(a.start)
	if elapsed < 0 {
		return a.from
	}
	k := a.spec.Curve.Ease(float64(elapsed) / float64(a.spec.Duration))
	return Point{
		X: a.from.X + (a.to.X-a.from.X)*k,
		Y: a.from.Y + (a.to.Y-a.from.Y)*k,
	}
}

// Target is the offset the animator is heading to.
func (a *Animator) Target() Point { return a.to }

// Done reports whether the animation has settled at time now.
func (a *Animator) Done(now time.Time) bool {
	return a.spec.Duration <= 0 || !now.Before(a.start.Add(a.spec.Duration))
}
