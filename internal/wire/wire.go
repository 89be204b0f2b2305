// Package wire defines the JSON messages exchanged with tiltpand.
//
// IPC (unix socket): line-delimited JSON.
//   - Client sends: {"type": "set_viewport", "data": {"width": 300, "height": 500}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
//
// State websocket: text frames {"type", "ts", "data"}. Viewers may send the
// same request envelopes over the socket.
package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"tiltpan/internal/tilt"
)

// Request types.
const (
	TypeSetMonitoring  = "set_monitoring"
	TypeSetViewport    = "set_viewport"
	TypeSetImage       = "set_image"
	TypeClearImage     = "clear_image"
	TypeUserPanned     = "user_panned"
	TypeSetOrientation = "set_orientation"
	TypeSample         = "sample"
	TypeGetState       = "get_state"
)

// Frame types pushed on the state websocket.
const (
	FrameStateInit         = "state_init"
	FrameOffsetChanged     = "offset_changed"
	FrameGeometryChanged   = "geometry_changed"
	FrameMonitoringChanged = "monitoring_changed"
)

// Envelope wraps a request with a type discriminator.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data (which may be nil) into an envelope of type typ.
func NewEnvelope(typ string, data any) (Envelope, error) {
	env := Envelope{Type: typ}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	env.Data = raw
	return env, nil
}

// Response is the daemon's reply to one IPC request.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Error  string         `json:"error,omitempty"`
	State  *tilt.Snapshot `json:"state,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request payloads.
type (
	Monitoring struct {
		Enabled bool `json:"enabled"`
	}

	// Image sets the image by size, or by a path readable by the daemon.
	Image struct {
		Width  float64 `json:"width,omitempty"`
		Height float64 `json:"height,omitempty"`
		Path   string  `json:"path,omitempty"`
	}

	Orientation struct {
		Orientation string `json:"orientation"`
	}

	// Sample is an angular rate in rad/s. An empty orientation uses the
	// daemon's current one.
	Sample struct {
		X           float64 `json:"x"`
		Y           float64 `json:"y"`
		Z           float64 `json:"z"`
		Orientation string  `json:"orientation,omitempty"`
	}
)

// Frame is one message on the state websocket.
type Frame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame stamped with at (now if zero).
func NewFrame(typ string, at time.Time, data any) ([]byte, error) {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: typ, Ts: &at, Data: raw})
}

// Frame payloads.
type (
	// Offset is the offset_changed payload.
	Offset struct {
		X          float64         `json:"x"`
		Y          float64         `json:"y"`
		Mode       tilt.AspectMode `json:"mode"`
		DurationMS int64           `json:"duration_ms"`
		Curve      tilt.Curve      `json:"curve"`
	}

	GeometryChanged struct {
		Geometry tilt.Geometry `json:"geometry"`
		HasImage bool          `json:"has_image"`
	}

	MonitoringChanged struct {
		Monitoring      bool `json:"monitoring"`
		SensorAvailable bool `json:"sensor_available"`
	}
)

// Animation rebuilds the animation spec carried by o.
func (o Offset) Animation() tilt.AnimationSpec {
	if o.DurationMS <= 0 {
		return tilt.Immediate()
	}
	spec := tilt.DefaultAnimation()
	spec.Duration = time.Duration(o.DurationMS) * time.Millisecond
	if o.Curve != "" {
		spec.Curve = o.Curve
	}
	return spec
}

// Send dials the daemon socket, sends env and waits for the response.
// A response with status "error" is returned as an error.
func Send(socketPath string, env Envelope, timeout time.Duration) (Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return Response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	data, err := json.Marshal(env)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(string(data))); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != StatusOK {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}
