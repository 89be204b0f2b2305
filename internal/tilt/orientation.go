package tilt

import (
	"fmt"
	"strings"
	"time"
)

// Orientation is the physical device orientation at sample capture time.
type Orientation int

const (
	OrientationUnknown Orientation = iota
	OrientationPortrait
	OrientationPortraitUpsideDown
	OrientationLandscapeLeft
	OrientationLandscapeRight
	OrientationFaceUp
	OrientationFaceDown
)

var orientationNames = map[Orientation]string{
	OrientationUnknown:            "unknown",
	OrientationPortrait:           "portrait",
	OrientationPortraitUpsideDown: "portrait_upside_down",
	OrientationLandscapeLeft:      "landscape_left",
	OrientationLandscapeRight:     "landscape_right",
	OrientationFaceUp:             "face_up",
	OrientationFaceDown:           "face_down",
}

func (o Orientation) String() string {
	if name, ok := orientationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("orientation(%d)", int(o))
}

// ParseOrientation accepts snake_case, kebab-case or camelCase names.
// The empty string parses as OrientationUnknown.
func ParseOrientation(s string) (Orientation, error) {
	norm := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	if norm == "" {
		return OrientationUnknown, nil
	}
	for o, name := range orientationNames {
		if strings.ReplaceAll(name, "_", "") == norm {
			return o, nil
		}
	}
	return OrientationUnknown, fmt.Errorf("%w: %q", ErrUnknownOrientation, s)
}

func (o Orientation) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Orientation) UnmarshalText(b []byte) error {
	v, err := ParseOrientation(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// AngularRate is a gyroscope reading in rad/s around the device axes.
type AngularRate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sample is one gyroscope delivery. A non-nil Err marks the sample as
// unusable; it must be dropped without touching the offset.
type Sample struct {
	Rate        AngularRate
	Orientation Orientation
	At          time.Time
	Err         error
}

// RotationRate extracts the signed rate around the left-right tilt axis.
//
// Only the y component is used. Its sign flips for the 180° counterpart of each
// recognized orientation; any other orientation yields 0.
func RotationRate(s Sample) float64 {
	switch s.Orientation {
	case OrientationPortrait, OrientationLandscapeLeft:
		return s.Rate.Y
	case OrientationPortraitUpsideDown, OrientationLandscapeRight:
		return -s.Rate.Y
	default:
		return 0
	}
}
