package tilt

import (
	"math"
	"testing"
	"time"
)

func TestCurveEaseOut(t *testing.T) {
	if CurveEaseOut.Ease(0) != 0 || CurveEaseOut.Ease(1) != 1 {
		t.Fatalf("ease-out must map 0->0 and 1->1")
	}
	// Ease-out is ahead of linear in the first half and decelerates.
	if CurveEaseOut.Ease(0.25) <= 0.25 {
		t.Fatalf("ease-out(0.25) = %v, want > 0.25", CurveEaseOut.Ease(0.25))
	}
	first := CurveEaseOut.Ease(0.1) - CurveEaseOut.Ease(0)
	last := CurveEaseOut.Ease(1) - CurveEaseOut.Ease(0.9)
	if first <= last {
		t.Fatalf("ease-out must decelerate: first step %v, last step %v", first, last)
	}
	if CurveEaseOut.Ease(-1) != 0 || CurveEaseOut.Ease(2) != 1 {
		t.Fatalf("progress must be clamped")
	}
}

func TestAnimator_ReachesTarget(t *testing.T) {
	t0 := time.Unix(1000, 0)
	a := NewAnimator(Point{})
	a.Retarget(Point{X: 100}, DefaultAnimation(), t0)

	if got := a.Value(t0); got.X != 0 {
		t.Fatalf("value at start = %v, want 0", got.X)
	}
	mid := a.Value(t0.Add(150 * time.Millisecond))
	if mid.X <= 50 || mid.X >= 100 {
		t.Fatalf("ease-out midpoint = %v, want in (50,100)", mid.X)
	}
	if a.Done(t0.Add(299 * time.Millisecond)) {
		t.Fatalf("animation should still be running before 300ms")
	}
	end := t0.Add(DefaultAnimationDuration)
	if got := a.Value(end); got.X != 100 || !a.Done(end) {
		t.Fatalf("value at end = %v (done=%v), want 100", got.X, a.Done(end))
	}
}

func TestAnimator_RetargetBeginsFromCurrentState(t *testing.T) {
	t0 := time.Unix(1000, 0)
	a := NewAnimator(Point{})
	a.Retarget(Point{X: 100}, DefaultAnimation(), t0)

	t1 := t0.Add(100 * time.Millisecond)
	presented := a.Value(t1)

	// A new sample preempts: the new animation starts where the view is now.
	a.Retarget(Point{X: 20}, DefaultAnimation(), t1)
	if got := a.Value(t1); math.Abs(got.X-presented.X) > 1e-9 {
		t.Fatalf("retarget jumped from %v to %v", presented.X, got.X)
	}
	if a.Target() != (Point{X: 20}) {
		t.Fatalf("target = %+v, want {20 0}", a.Target())
	}
	// Nothing queued: after one duration we rest at the latest target.
	if got := a.Value(t1.Add(DefaultAnimationDuration)); got.X != 20 {
		t.Fatalf("settled at %v, want 20", got.X)
	}
}

func TestAnimator_Immediate(t *testing.T) {
	t0 := time.Unix(1000, 0)
	a := NewAnimator(Point{Y: 10})
	a.Retarget(Point{Y: 40}, Immediate(), t0)
	if got := a.Value(t0); got.Y != 40 {
		t.Fatalf("immediate retarget should jump, got %v", got.Y)
	}
}
