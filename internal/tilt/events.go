package tilt

import (
	"fmt"
	"time"
)

// ==============================
// Events
// ==============================

// Event is an input to Reduce.
type Event interface {
	eventMarker()
}

// SetMonitoring is the owner's explicit setMonitoringEnabled call.
type SetMonitoring struct {
	Enabled bool `json:"enabled"`
}

func (SetMonitoring) eventMarker() {}

// SensorObserved reports whether a motion sensor is present.
type SensorObserved struct {
	Name      string
	Available bool
}

func (SensorObserved) eventMarker() {}

// SamplingFailed is emitted when a sampler could not start or died mid-session.
type SamplingFailed struct {
	Session uint64
	Err     error
}

func (SamplingFailed) eventMarker() {}

// SampleReceived carries one sensor delivery tagged with its session.
type SampleReceived struct {
	Session uint64
	Sample  Sample
}

func (SampleReceived) eventMarker() {}

// SetViewport reports a layout change of the visible frame.
type SetViewport struct {
	Size Size `json:"size"`
}

func (SetViewport) eventMarker() {}

// SetImage installs a new image by its natural size.
type SetImage struct {
	Size Size `json:"size"`
}

func (SetImage) eventMarker() {}

// ClearImage removes the image; panning is suppressed until a new one is set.
type ClearImage struct{}

func (ClearImage) eventMarker() {}

// UserPanned reports an offset set by external (touch) panning.
type UserPanned struct {
	Offset Point `json:"offset"`
}

func (UserPanned) eventMarker() {}

// RequestSnapshot asks the reducer for a coherent Snapshot.
// Reply should be buffered; delivery never blocks.
type RequestSnapshot struct {
	Reply chan<- Snapshot
}

func (RequestSnapshot) eventMarker() {}

// ==============================
// Commands (side effects)
// ==============================

// Command is a side effect requested by the reducer.
type Command interface {
	commandMarker()
	String() string
}

// CmdStartSampling starts a sampler session.
type CmdStartSampling struct {
	Session  uint64
	Interval time.Duration
}

func (CmdStartSampling) commandMarker() {}
func (c CmdStartSampling) String() string {
	return fmt.Sprintf("CmdStartSampling(session=%d, interval=%s)", c.Session, c.Interval)
}

// CmdStopSampling stops the running sampler session.
type CmdStopSampling struct {
	Session uint64
}

func (CmdStopSampling) commandMarker() {}
func (c CmdStopSampling) String() string {
	return fmt.Sprintf("CmdStopSampling(session=%d)", c.Session)
}

// CmdApplyOffset hands a new offset to the view sink.
type CmdApplyOffset struct {
	Offset    Point
	Mode      AspectMode
	Animation AnimationSpec
}

func (CmdApplyOffset) commandMarker() {}
func (c CmdApplyOffset) String() string {
	return fmt.Sprintf("CmdApplyOffset(x=%.3f, y=%.3f, anim=%s)", c.Offset.X, c.Offset.Y, c.Animation)
}

// CmdPublishSnapshot delivers a snapshot to a requester.
type CmdPublishSnapshot struct {
	Snapshot Snapshot
	Reply    chan<- Snapshot
}

func (CmdPublishSnapshot) commandMarker() {}
func (CmdPublishSnapshot) String() string { return "CmdPublishSnapshot()" }

// ==============================
// Broadcasts
// ==============================

// StateBroadcast is a state notification for observers (e.g. websocket clients).
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastOffsetChanged is emitted whenever the model offset changes.
type BroadcastOffsetChanged struct {
	Offset    Point
	Mode      AspectMode
	Animation AnimationSpec
	At        time.Time
}

func (BroadcastOffsetChanged) broadcastMarker() {}

// BroadcastGeometryChanged is emitted when the derived geometry changes.
type BroadcastGeometryChanged struct {
	Geometry Geometry
	HasImage bool
	At       time.Time
}

func (BroadcastGeometryChanged) broadcastMarker() {}

// BroadcastMonitoringChanged is emitted on Disabled <-> Monitoring transitions
// and on sensor availability changes.
type BroadcastMonitoringChanged struct {
	Monitoring      bool
	SensorAvailable bool
	At              time.Time
}

func (BroadcastMonitoringChanged) broadcastMarker() {}
