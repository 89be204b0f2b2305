package tilt

// State is the controller state owned by a single goroutine.
//
// Nothing outside that goroutine may hold a pointer to State; other
// goroutines observe it through Snapshot values delivered by the reducer.
type State struct {
	// Layout inputs as last supplied by the view collaborator.
	Viewport Size
	Image    *Size

	// Geometry is derived from Viewport and Image and is recomputed
	// synchronously whenever either changes.
	Geometry Geometry

	// Offset is the model offset (the animation target, not the presented value).
	Offset AxisOffset

	Monitoring MonitoringState
	Sensor     SensorState
	Stats      SampleStats
}

// MonitoringState tracks the sampling lifecycle.
type MonitoringState struct {
	// Wanted is the owner's last setMonitoringEnabled value.
	Wanted bool

	// Active is true while a sampler session is running.
	Active bool

	// Session identifies the current (or most recent) sampler session.
	// Samples tagged with any other session are stale.
	Session uint64
}

// SensorState is what the controller knows about sensor availability.
type SensorState struct {
	Name      string
	Known     bool
	Available bool
}

// SampleStats counts what happened to delivered samples.
type SampleStats struct {
	Applied      uint64 `json:"applied"`
	Noise        uint64 `json:"noise"`
	Errors       uint64 `json:"errors"`
	Stale        uint64 `json:"stale"`
	NoGeometry   uint64 `json:"no_geometry"`
	LastSampleAt int64  `json:"last_sample_unix_ms,omitempty"`
}

// Snapshot is an immutable copy of State for other goroutines.
type Snapshot struct {
	Monitoring      bool        `json:"monitoring"`
	MonitoringWant  bool        `json:"monitoring_wanted"`
	SensorName      string      `json:"sensor,omitempty"`
	SensorAvailable bool        `json:"sensor_available"`
	HasImage        bool        `json:"has_image"`
	Image           *Size       `json:"image,omitempty"`
	Geometry        Geometry    `json:"geometry"`
	Offset          Point       `json:"offset"`
	Stats           SampleStats `json:"stats"`
}

// Snapshot copies the observable parts of s.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Monitoring:      s.Monitoring.Active,
		MonitoringWant:  s.Monitoring.Wanted,
		SensorName:      s.Sensor.Name,
		SensorAvailable: s.Sensor.Available,
		HasImage:        s.Image != nil,
		Geometry:        s.Geometry,
		Offset:          s.Offset.Point(),
		Stats:           s.Stats,
	}
	if s.Image != nil {
		img := *s.Image
		snap.Image = &img
	}
	return snap
}
