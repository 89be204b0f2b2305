package sensor

import (
	"sync"
	"time"

	"tiltpan/internal/tilt"
)

// External is a sampler fed from outside the process (IPC). Pushed samples
// are delivered only while a session is running and are dropped otherwise.
type External struct {
	orient *OrientationTracker

	mu      sync.Mutex
	deliver func(tilt.Sample)
}

func NewExternal(orient *OrientationTracker) *External {
	return &External{orient: orient}
}

func (e *External) Name() string    { return "external" }
func (e *External) Available() bool { return true }

func (e *External) Start(_ time.Duration, deliver func(tilt.Sample), _ func(error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deliver != nil {
		return ErrAlreadyRunning
	}
	e.deliver = deliver
	return nil
}

func (e *External) Stop() {
	e.mu.Lock()
	e.deliver = nil
	e.mu.Unlock()
}

// Push delivers s if a session is running and reports whether it did.
// An Unknown orientation is replaced by the tracked orientation.
func (e *External) Push(s tilt.Sample) bool {
	if s.Orientation == tilt.OrientationUnknown {
		s.Orientation = e.orient.Get()
	}
	if s.At.IsZero() {
		s.At = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deliver == nil {
		return false
	}
	e.deliver(s)
	return true
}
