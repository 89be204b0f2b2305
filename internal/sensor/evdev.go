package sensor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"tiltpan/internal/tilt"
)

// Linux input event types and codes (from <linux/input-event-codes.h>)
const (
	evSyn = 0x00
	evAbs = 0x03

	synReport  = 0
	synDropped = 3

	absRX = 0x03
	absRY = 0x04
	absRZ = 0x05
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// EvdevConfig selects a gyroscope evdev node (for example the "Motion
// Sensors" device exposed by game controllers and handhelds).
type EvdevConfig struct {
	Device string

	// UnitsPerDPS is the ABS resolution: raw units per degree/second.
	UnitsPerDPS float64
}

// evdevDecoder folds EV_ABS rotation axes into samples, one per SYN_REPORT.
// ABS values are sticky: an axis that did not change keeps its last value.
type evdevDecoder struct {
	unitsPerDPS float64
	orient      *OrientationTracker

	axes     [3]int32
	seenAxis bool
	dropping bool
}

func newEvdevDecoder(unitsPerDPS float64, orient *OrientationTracker) *evdevDecoder {
	if unitsPerDPS <= 0 {
		unitsPerDPS = 1
	}
	return &evdevDecoder{unitsPerDPS: unitsPerDPS, orient: orient}
}

// feed consumes one input event and returns a sample when a frame completes.
func (d *evdevDecoder) feed(ev inputEvent) (tilt.Sample, bool) {
	switch ev.Type {
	case evAbs:
		switch ev.Code {
		case absRX, absRY, absRZ:
			d.axes[ev.Code-absRX] = ev.Value
			d.seenAxis = true
		}

	case evSyn:
		at := time.Unix(ev.Sec, ev.Usec*int64(time.Microsecond))
		switch ev.Code {
		case synDropped:
			// The kernel buffer overran; everything until the next report is unreliable.
			d.dropping = true
			return tilt.Sample{At: at, Err: fmt.Errorf("%w: evdev events dropped", tilt.ErrSampleInvalid)}, true

		case synReport:
			if d.dropping {
				d.dropping = false
				return tilt.Sample{}, false
			}
			if !d.seenAxis {
				return tilt.Sample{}, false
			}
			return tilt.Sample{
				Rate: tilt.AngularRate{
					X: d.toRadPerSec(d.axes[0]),
					Y: d.toRadPerSec(d.axes[1]),
					Z: d.toRadPerSec(d.axes[2]),
				},
				Orientation: d.orient.Get(),
				At:          at,
			}, true
		}
	}
	return tilt.Sample{}, false
}

func (d *evdevDecoder) toRadPerSec(v int32) float64 {
	return float64(v) / d.unitsPerDPS * math.Pi / 180
}

// decodeInputEvents parses as many whole input_event records as buf holds.
func decodeInputEvents(buf []byte) []inputEvent {
	n := len(buf) / inputEventSize
	out := make([]inputEvent, 0, n)
	reader := bytes.NewReader(buf[:n*inputEventSize])
	for i := 0; i < n; i++ {
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			// Skip malformed events
			break
		}
		out = append(out, ev)
	}
	return out
}
