package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"tiltpan/internal/tilt"
	"tiltpan/internal/wire"
)

var errNeedsDaemonContext = errors.New("request is not a controller event")

// UnmarshalEvent decodes an owner request into a controller event.
//
// Requests that act outside the controller (orientation, injected samples,
// state queries, image paths) return errNeedsDaemonContext; the IPC handler
// serves those itself.
func UnmarshalEvent(env wire.Envelope) (tilt.Event, error) {
	switch env.Type {
	case wire.TypeSetMonitoring:
		var m wire.Monitoring
		if err := decodeData(env, &m); err != nil {
			return nil, err
		}
		return tilt.SetMonitoring{Enabled: m.Enabled}, nil

	case wire.TypeSetViewport:
		var s tilt.Size
		if err := decodeData(env, &s); err != nil {
			return nil, err
		}
		return tilt.SetViewport{Size: s}, nil

	case wire.TypeSetImage:
		var img wire.Image
		if err := decodeData(env, &img); err != nil {
			return nil, err
		}
		if img.Path != "" {
			return nil, fmt.Errorf("set_image with path: %w", errNeedsDaemonContext)
		}
		size := tilt.Size{Width: img.Width, Height: img.Height}
		if !size.Valid() {
			return nil, fmt.Errorf("set_image: %w: %s", tilt.ErrInvalidGeometry, size)
		}
		return tilt.SetImage{Size: size}, nil

	case wire.TypeClearImage:
		return tilt.ClearImage{}, nil

	case wire.TypeUserPanned:
		var p tilt.Point
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return tilt.UserPanned{Offset: p}, nil

	case wire.TypeSetOrientation, wire.TypeSample, wire.TypeGetState:
		return nil, fmt.Errorf("%s: %w", env.Type, errNeedsDaemonContext)

	case "":
		return nil, errors.New("missing request type")

	default:
		return nil, fmt.Errorf("unknown request type: %q", env.Type)
	}
}

// MarshalEvent encodes a controller event as an owner request.
func MarshalEvent(e tilt.Event) (wire.Envelope, error) {
	switch ev := e.(type) {
	case tilt.SetMonitoring:
		return wire.NewEnvelope(wire.TypeSetMonitoring, wire.Monitoring{Enabled: ev.Enabled})
	case tilt.SetViewport:
		return wire.NewEnvelope(wire.TypeSetViewport, ev.Size)
	case tilt.SetImage:
		return wire.NewEnvelope(wire.TypeSetImage, wire.Image{Width: ev.Size.Width, Height: ev.Size.Height})
	case tilt.ClearImage:
		return wire.NewEnvelope(wire.TypeClearImage, nil)
	case tilt.UserPanned:
		return wire.NewEnvelope(wire.TypeUserPanned, ev.Offset)
	default:
		return wire.Envelope{}, fmt.Errorf("event %T has no wire form", e)
	}
}

func decodeData(env wire.Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: missing data", env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	return nil
}
