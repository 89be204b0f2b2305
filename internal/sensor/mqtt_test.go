package sensor

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tiltpan/internal/tilt"
)

func TestDecodeGyroPayload_Units(t *testing.T) {
	now := time.Unix(100, 0)
	cases := []struct {
		name  string
		cfg   MQTTConfig
		body  string
		wantY float64
	}{
		{"rad_s", MQTTConfig{Units: UnitsRadPerSec}, `{"gx":0,"gy":1.5,"gz":0}`, 1.5},
		{"deg_s", MQTTConfig{Units: UnitsDegPerSec}, `{"gx":0,"gy":180,"gz":0}`, math.Pi},
		{"raw imu message", MQTTConfig{Units: UnitsRaw, RawLSBPerDPS: 131}, `{"source":"left","ax":1,"ay":2,"az":3,"gx":0,"gy":13100,"gz":0,"mx":0,"my":0,"mz":0}`, 100 * math.Pi / 180},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := decodeGyroPayload([]byte(tc.body), tc.cfg, tilt.OrientationPortrait, now)
			if s.Err != nil {
				t.Fatalf("unexpected error: %v", s.Err)
			}
			if math.Abs(s.Rate.Y-tc.wantY) > 1e-9 {
				t.Fatalf("y = %v, want %v", s.Rate.Y, tc.wantY)
			}
			if s.Orientation != tilt.OrientationPortrait || !s.At.Equal(now) {
				t.Fatalf("unexpected orientation/time: %v %v", s.Orientation, s.At)
			}
		})
	}
}

func TestDecodeGyroPayload_OrientationAndTimestamp(t *testing.T) {
	body := `{"gx":0,"gy":1,"gz":0,"orientation":"landscape_right","ts":"2024-05-01T10:00:00Z"}`
	s := decodeGyroPayload([]byte(body), MQTTConfig{}, tilt.OrientationPortrait, time.Now())
	if s.Err != nil {
		t.Fatalf("unexpected error: %v", s.Err)
	}
	if s.Orientation != tilt.OrientationLandscapeRight {
		t.Fatalf("orientation = %v", s.Orientation)
	}
	if want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC); !s.At.Equal(want) {
		t.Fatalf("at = %v, want %v", s.At, want)
	}

	// Unrecognized orientation is not an error; it extracts to zero.
	s = decodeGyroPayload([]byte(`{"gx":0,"gy":1,"gz":0,"orientation":"sideways"}`), MQTTConfig{}, tilt.OrientationPortrait, time.Now())
	if s.Err != nil || s.Orientation != tilt.OrientationUnknown || tilt.RotationRate(s) != 0 {
		t.Fatalf("got %+v", s)
	}
}

func TestDecodeGyroPayload_Malformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"gx":1,"gz":2}`, `{}`} {
		s := decodeGyroPayload([]byte(body), MQTTConfig{}, tilt.OrientationPortrait, time.Now())
		if !errors.Is(s.Err, tilt.ErrSampleInvalid) {
			t.Errorf("%q: expected ErrSampleInvalid, got %v", body, s.Err)
		}
	}
}

// fakeToken completes immediately with err.
type fakeToken struct {
	mqtt.Token
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

// fakeClient implements the parts of mqtt.Client the sampler uses.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	opts         *mqtt.ClientOptions
	connectErr   error
	subscribeErr error
	subscribes   int
	connected    bool
	handler      mqtt.MessageHandler
	topic        string
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil
	return fakeToken{err: c.connectErr}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribes++
	if c.subscribeErr != nil {
		return fakeToken{err: c.subscribeErr}
	}
	c.topic = topic
	c.handler = cb
	return fakeToken{}
}

// reconnect simulates paho's auto-reconnect on a clean session: the broker
// forgot the subscription and the on-connect handler runs again.
func (c *fakeClient) reconnect() {
	c.mu.Lock()
	c.handler = nil
	c.connected = true
	onConnect := c.opts.OnConnect
	c.mu.Unlock()
	if onConnect != nil {
		onConnect(c)
	}
}

func (c *fakeClient) currentHandler() mqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *fakeClient) Unsubscribe(...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = nil
	return fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

// publish simulates a broker delivery; it uses the handler captured at
// subscribe time so it keeps working after Unsubscribe, like an in-flight message.
func (c *fakeClient) publish(handler mqtt.MessageHandler, body string) {
	handler(c, fakeMessage{payload: []byte(body)})
}

func newTestMQTT(fc *fakeClient) *MQTT {
	m := NewMQTT(MQTTConfig{Broker: "tcp://test:1883", ClientID: "t", Topic: "tiltpan/gyro"}, NewOrientationTracker(tilt.OrientationPortrait), slog.Default())
	m.newClient = func(opts *mqtt.ClientOptions) mqtt.Client {
		fc.mu.Lock()
		fc.opts = opts
		fc.mu.Unlock()
		return fc
	}
	return m
}

func TestMQTT_StartDeliverStop(t *testing.T) {
	fc := &fakeClient{}
	m := newTestMQTT(fc)

	var mu sync.Mutex
	var got []tilt.Sample
	deliver := func(s tilt.Sample) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}

	if err := m.Start(0, deliver, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(0, deliver, nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start: expected ErrAlreadyRunning, got %v", err)
	}
	if fc.topic != "tiltpan/gyro" || fc.handler == nil {
		t.Fatalf("expected subscription on tiltpan/gyro, got %q", fc.topic)
	}

	handler := fc.handler
	fc.publish(handler, `{"gx":0,"gy":2,"gz":0}`)

	m.Stop()
	if !fc.disconnected {
		t.Fatalf("expected Disconnect on Stop")
	}

	// A message racing with Stop must not be delivered once Stop returned.
	fc.publish(handler, `{"gx":0,"gy":3,"gz":0}`)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Rate.Y != 2 || got[0].Orientation != tilt.OrientationPortrait {
		t.Fatalf("unexpected deliveries %+v", got)
	}
}

func TestMQTT_ReconnectResubscribes(t *testing.T) {
	fc := &fakeClient{}
	m := newTestMQTT(fc)

	got := make(chan tilt.Sample, 4)
	if err := m.Start(0, func(s tilt.Sample) { got <- s }, func(err error) {
		t.Errorf("unexpected fail: %v", err)
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	fc.reconnect()

	handler := fc.currentHandler()
	if handler == nil || fc.subscribes != 2 {
		t.Fatalf("topic not resubscribed after reconnect (subscribes=%d)", fc.subscribes)
	}
	fc.publish(handler, `{"gx":0,"gy":1.5,"gz":0}`)

	select {
	case s := <-got:
		if s.Rate.Y != 1.5 {
			t.Fatalf("sample = %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatalf("no delivery after reconnect")
	}
}

func TestMQTT_FailedResubscribeFailsSession(t *testing.T) {
	fc := &fakeClient{}
	m := newTestMQTT(fc)

	delivered := 0
	var failErr error
	if err := m.Start(0, func(tilt.Sample) { delivered++ }, func(err error) { failErr = err }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()
	old := fc.currentHandler()

	fc.mu.Lock()
	fc.subscribeErr = errors.New("not authorized")
	fc.mu.Unlock()
	fc.reconnect()

	if !errors.Is(failErr, tilt.ErrSensorUnavailable) {
		t.Fatalf("fail err = %v, want ErrSensorUnavailable", failErr)
	}

	// Nothing is delivered once the session has failed.
	fc.publish(old, `{"gx":0,"gy":2,"gz":0}`)
	if delivered != 0 {
		t.Fatalf("delivered %d samples after failure", delivered)
	}
}

func TestMQTT_ConnectError(t *testing.T) {
	fc := &fakeClient{connectErr: errors.New("refused")}
	m := newTestMQTT(fc)
	if err := m.Start(0, func(tilt.Sample) {}, nil); err == nil {
		t.Fatalf("expected connect error")
	}
	// A failed start leaves the sampler startable.
	fc.connectErr = nil
	if err := m.Start(0, func(tilt.Sample) {}, nil); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	m.Stop()
}

func TestMQTT_Available(t *testing.T) {
	if NewMQTT(MQTTConfig{}, nil, slog.Default()).Available() {
		t.Fatalf("unconfigured MQTT must not be available")
	}
	if !NewMQTT(MQTTConfig{Broker: "tcp://x:1883", Topic: "t"}, nil, slog.Default()).Available() {
		t.Fatalf("configured MQTT should be available")
	}
}
