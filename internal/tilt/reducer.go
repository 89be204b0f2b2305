package tilt

import (
	"errors"
	"time"
)

// This file implements the controller as a pure reducer:
//
//   - Events: owner calls, sensor deliveries, sampler failures, layout changes
//   - Commands: sampler start/stop and offset application, executed by the caller
//   - Broadcasts: observable state changes for monitoring clients
//
// Reduce performs no I/O and never blocks. The owning loop executes Commands,
// turns their outcomes into Events and feeds those back in.

// ReduceResult is the output of Reduce.
type ReduceResult struct {
	State      *State
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce computes the next state for one event.
//
// Rules:
//   - Must not perform I/O
//   - Must not block
//   - Must not mutate anything outside the returned state
//
// now stamps broadcasts; the reducer never reads the clock itself.
func Reduce(s *State, e Event, p Params, now time.Time) ReduceResult {
	if s == nil {
		s = &State{}
	}

	var r ReduceResult

	switch ev := e.(type) {
	case SetMonitoring:
		s.Monitoring.Wanted = ev.Enabled
		if ev.Enabled {
			r.startSampling(s, p, now)
		} else {
			r.stopSampling(s, now)
		}

	case SensorObserved:
		prev := s.Sensor
		s.Sensor = SensorState{Name: ev.Name, Known: true, Available: ev.Available}
		if !ev.Available {
			r.stopSampling(s, now)
		} else if s.Monitoring.Wanted {
			r.startSampling(s, p, now)
		}
		if prev.Available != ev.Available && len(r.Broadcasts) == 0 {
			r.monitoringChanged(s, now)
		}

	case SamplingFailed:
		if ev.Session != s.Monitoring.Session || !s.Monitoring.Active {
			break
		}
		s.Monitoring.Active = false
		if errors.Is(ev.Err, ErrSensorUnavailable) {
			s.Sensor.Available = false
		}
		// Release whatever the failed session still holds.
		r.Commands = append(r.Commands, CmdStopSampling{Session: ev.Session})
		r.monitoringChanged(s, now)

	case SampleReceived:
		r.applySample(s, ev, p)

	case SetViewport:
		s.Viewport = ev.Size
		r.relayout(s, now)

	case SetImage:
		img := ev.Size
		s.Image = &img
		r.relayout(s, now)

	case ClearImage:
		s.Image = nil
		r.relayout(s, now)

	case UserPanned:
		if s.Geometry.Mode == AspectNone {
			break
		}
		next := s.Geometry.Project(ev.Offset)
		if next != s.Offset {
			s.Offset = next
			// The view already shows this offset; observers still need to follow it.
			r.Broadcasts = append(r.Broadcasts, BroadcastOffsetChanged{
				Offset:    next.Point(),
				Mode:      next.Mode,
				Animation: Immediate(),
				At:        now,
			})
		}

	case RequestSnapshot:
		r.Commands = append(r.Commands, CmdPublishSnapshot{Snapshot: s.Snapshot(), Reply: ev.Reply})

	default:
		// Unknown event type: no-op.
	}

	r.State = s
	return r
}

// startSampling moves Disabled -> Monitoring. It is a no-op when already
// monitoring or when no sensor is available.
func (r *ReduceResult) startSampling(s *State, p Params, now time.Time) {
	if s.Monitoring.Active || !s.Sensor.Available {
		return
	}
	s.Monitoring.Active = true
	s.Monitoring.Session++
	r.Commands = append(r.Commands, CmdStartSampling{Session: s.Monitoring.Session, Interval: p.SampleInterval})
	r.monitoringChanged(s, now)
}

// stopSampling moves Monitoring -> Disabled. Samples of the stopped session
// that are still queued become stale and are dropped on arrival.
func (r *ReduceResult) stopSampling(s *State, now time.Time) {
	if !s.Monitoring.Active {
		return
	}
	s.Monitoring.Active = false
	r.Commands = append(r.Commands, CmdStopSampling{Session: s.Monitoring.Session})
	r.monitoringChanged(s, now)
}

func (r *ReduceResult) monitoringChanged(s *State, now time.Time) {
	r.Broadcasts = append(r.Broadcasts, BroadcastMonitoringChanged{
		Monitoring:      s.Monitoring.Active,
		SensorAvailable: s.Sensor.Available,
		At:              now,
	})
}

func (r *ReduceResult) applySample(s *State, ev SampleReceived, p Params) {
	if !s.Monitoring.Active || ev.Session != s.Monitoring.Session {
		s.Stats.Stale++
		return
	}
	if !ev.Sample.At.IsZero() {
		s.Stats.LastSampleAt = ev.Sample.At.UnixMilli()
	}
	if ev.Sample.Err != nil {
		s.Stats.Errors++
		return
	}
	if s.Geometry.Mode == AspectNone {
		s.Stats.NoGeometry++
		return
	}

	next, changed := Step(s.Geometry, s.Offset, ev.Sample, p)
	if !changed {
		s.Stats.Noise++
		return
	}
	s.Stats.Applied++
	s.Offset = next
	r.Commands = append(r.Commands, CmdApplyOffset{
		Offset:    next.Point(),
		Mode:      next.Mode,
		Animation: p.Animation,
	})
}

// relayout recomputes geometry from the current viewport and image and
// resyncs the offset into the new bounds. Repeating it with unchanged inputs
// emits nothing.
func (r *ReduceResult) relayout(s *State, now time.Time) {
	g, err := NewGeometry(s.Viewport, s.Image)
	if err != nil {
		// Invalid layouts suppress tilt until valid geometry returns.
		g = Geometry{Viewport: s.Viewport}
	}

	geometryChanged := g != s.Geometry
	s.Geometry = g

	next := g.Resync(s.Offset)
	if next != s.Offset {
		s.Offset = next
		r.Commands = append(r.Commands, CmdApplyOffset{
			Offset:    next.Point(),
			Mode:      next.Mode,
			Animation: Immediate(),
		})
	}

	if geometryChanged {
		r.Broadcasts = append(r.Broadcasts, BroadcastGeometryChanged{
			Geometry: g,
			HasImage: s.Image != nil,
			At:       now,
		})
	}
}
