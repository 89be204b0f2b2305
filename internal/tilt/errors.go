package tilt

import "errors"

var (
	// ErrSensorUnavailable means no motion sensor can produce samples.
	ErrSensorUnavailable = errors.New("motion sensor unavailable")

	// ErrSampleInvalid marks a single sample that must be dropped.
	ErrSampleInvalid = errors.New("invalid sensor sample")

	// ErrInvalidGeometry is returned for viewport/content pairs that cannot be panned.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrUnknownOrientation is returned by ParseOrientation for unrecognized names.
	ErrUnknownOrientation = errors.New("unknown orientation")
)
