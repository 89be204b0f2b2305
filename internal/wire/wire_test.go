package wire

import (
	"encoding/json"
	"testing"
	"time"

	"tiltpan/internal/tilt"
)

func TestNewEnvelope_NilDataOmitted(t *testing.T) {
	env, err := NewEnvelope(TypeClearImage, nil)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	b, _ := json.Marshal(env)
	if string(b) != `{"type":"clear_image"}` {
		t.Fatalf("got %s", b)
	}
}

func TestNewFrame_StampsUTC(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	b, err := NewFrame(FrameMonitoringChanged, at, MonitoringChanged{Monitoring: true})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Ts == nil || !f.Ts.Equal(at) || f.Ts.Location() != time.UTC {
		t.Fatalf("ts = %v", f.Ts)
	}
	if string(f.Data) != `{"monitoring":true,"sensor_available":false}` {
		t.Fatalf("data = %s", f.Data)
	}
}

func TestOffset_Animation(t *testing.T) {
	if got := (Offset{}).Animation(); got != tilt.Immediate() {
		t.Fatalf("zero duration = %s, want immediate", got)
	}
	got := Offset{DurationMS: 300, Curve: tilt.CurveEaseOut}.Animation()
	if got != tilt.DefaultAnimation() {
		t.Fatalf("animation = %+v, want default", got)
	}
}
