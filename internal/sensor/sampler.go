// Package sensor provides angular-rate sample sources for the tilt controller.
package sensor

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"tiltpan/internal/tilt"
)

// Sampler produces gyroscope samples on a background goroutine.
//
// Start begins delivery; interval is a hint that sources with their own
// cadence may ignore. deliver is called from the sampler goroutine and must
// not block. fail is called at most once per session when the source dies; the
// sampler has already stopped delivering when fail runs.
//
// Stop returns only after the delivering goroutine has finished: no deliver
// call happens after Stop returns. Stop on a stopped sampler is a no-op.
type Sampler interface {
	Name() string
	Available() bool
	Start(interval time.Duration, deliver func(tilt.Sample), fail func(error)) error
	Stop()
}

// ErrAlreadyRunning is returned by Start while a session is active.
var ErrAlreadyRunning = errors.New("sampler already running")

// OrientationTracker holds the current device orientation for sources whose
// samples don't carry one. It is safe for concurrent use.
type OrientationTracker struct {
	v atomic.Int32
}

// NewOrientationTracker returns a tracker initialised to o.
func NewOrientationTracker(o tilt.Orientation) *OrientationTracker {
	t := &OrientationTracker{}
	t.Set(o)
	return t
}

func (t *OrientationTracker) Set(o tilt.Orientation) { t.v.Store(int32(o)) }

// Get returns the current orientation; a nil tracker reports Unknown.
func (t *OrientationTracker) Get() tilt.Orientation {
	if t == nil {
		return tilt.OrientationUnknown
	}
	return tilt.Orientation(t.v.Load())
}

// loop runs one goroutine per session and joins it on halt.
type loop struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (l *loop) start(run func(stop <-chan struct{})) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		select {
		case <-l.done:
			// previous session ended on its own
		default:
			return ErrAlreadyRunning
		}
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	l.stop, l.done = stop, done
	go func() {
		defer close(done)
		run(stop)
	}()
	return nil
}

func (l *loop) halt() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// stopWaker calls wake once if stop closes while the session runs. The
// returned join ends the watch and returns only after the watcher goroutine
// has exited, so wake never runs after join.
func stopWaker(stop <-chan struct{}, wake func()) (join func()) {
	exited := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-stop:
			wake()
		case <-exited:
		}
	}()
	return func() {
		close(exited)
		<-done
	}
}
