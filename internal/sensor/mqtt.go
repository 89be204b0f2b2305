package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tiltpan/internal/tilt"
)

// Gyro payload units accepted on the MQTT topic.
const (
	UnitsRadPerSec = "rad_s"
	UnitsDegPerSec = "deg_s"
	UnitsRaw       = "raw"
)

// MQTTConfig describes the broker and topic carrying gyro samples.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte

	// Units of gx/gy/gz in the payload.
	Units string
	// RawLSBPerDPS converts raw counts to degree/second (131 for an
	// MPU-9250 at ±250 dps).
	RawLSBPerDPS float64

	ConnectTimeout time.Duration
}

// gyroPayload is the JSON message on the gyro topic. Raw IMU messages
// ({"source":"left","gx":..,"gy":..,"gz":..,"ax":..}) decode into it as well;
// unrelated fields are ignored.
type gyroPayload struct {
	Source      string     `json:"source,omitempty"`
	Gx          *float64   `json:"gx"`
	Gy          *float64   `json:"gy"`
	Gz          *float64   `json:"gz"`
	Orientation string     `json:"orientation,omitempty"`
	Timestamp   *time.Time `json:"ts,omitempty"`
}

// MQTT is a sampler subscribed to a gyro topic.
type MQTT struct {
	cfg    MQTTConfig
	orient *OrientationTracker
	logger *slog.Logger

	// newClient is swapped in tests.
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu         sync.RWMutex
	client     mqtt.Client
	deliver    func(tilt.Sample)
	fail       func(error)
	subscribed bool
}

func NewMQTT(cfg MQTTConfig, orient *OrientationTracker, logger *slog.Logger) *MQTT {
	if cfg.Units == "" {
		cfg.Units = UnitsRadPerSec
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &MQTT{cfg: cfg, orient: orient, logger: logger, newClient: mqtt.NewClient}
}

func (m *MQTT) Name() string { return "mqtt:" + m.cfg.Topic }

// Available reports whether a broker and topic are configured; reachability is
// checked by Start.
func (m *MQTT) Available() bool { return m.cfg.Broker != "" && m.cfg.Topic != "" }

// Start connects and subscribes. The interval hint is ignored: the publisher
// decides the rate.
func (m *MQTT) Start(_ time.Duration, deliver func(tilt.Sample), fail func(error)) error {
	m.mu.Lock()
	if m.client != nil {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.mu.Unlock()

	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.logger.Warn("mqtt connection lost", "broker", m.cfg.Broker, "error", err)
		}).
		SetOnConnectHandler(m.resubscribe)

	client := m.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(m.cfg.ConnectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect %s: timeout after %s", m.cfg.Broker, m.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", m.cfg.Broker, err)
	}

	m.mu.Lock()
	m.client = client
	m.deliver = deliver
	m.fail = fail
	m.mu.Unlock()

	if err := m.subscribe(client); err != nil {
		m.Stop()
		return err
	}
	m.mu.Lock()
	m.subscribed = m.client == client
	m.mu.Unlock()

	m.logger.Info("mqtt gyro subscribed", "broker", m.cfg.Broker, "topic", m.cfg.Topic, "units", m.cfg.Units)
	return nil
}

func (m *MQTT) subscribe(client mqtt.Client) error {
	token := client.Subscribe(m.cfg.Topic, m.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		m.handle(msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", m.cfg.Topic, err)
	}
	return nil
}

// resubscribe runs after every (re)connect. A clean session loses its
// subscriptions on reconnect, so the topic is subscribed again. The first
// connect is covered by Start. If the subscription cannot be restored the
// session is failed as unavailable.
func (m *MQTT) resubscribe(client mqtt.Client) {
	m.mu.RLock()
	active := m.subscribed && m.client == client
	m.mu.RUnlock()
	if !active {
		return
	}

	err := m.subscribe(client)
	if err == nil {
		m.logger.Info("mqtt gyro resubscribed", "broker", m.cfg.Broker, "topic", m.cfg.Topic)
		return
	}

	m.mu.Lock()
	if m.client != client {
		m.mu.Unlock()
		return
	}
	fail := m.fail
	m.deliver = nil
	m.fail = nil
	m.subscribed = false
	m.mu.Unlock()

	m.logger.Error("mqtt resubscribe failed", "topic", m.cfg.Topic, "error", err)
	if fail != nil {
		fail(fmt.Errorf("%w: %v", tilt.ErrSensorUnavailable, err))
	}
}

// handle runs on the paho callback goroutine.
func (m *MQTT) handle(payload []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.deliver == nil {
		return
	}
	m.deliver(decodeGyroPayload(payload, m.cfg, m.orient.Get(), time.Now()))
}

// Stop unsubscribes and disconnects. Holding the write lock waits out any
// callback that is mid-delivery.
func (m *MQTT) Stop() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.deliver = nil
	m.fail = nil
	m.subscribed = false
	m.mu.Unlock()

	if client == nil {
		return
	}
	if client.IsConnected() {
		client.Unsubscribe(m.cfg.Topic).WaitTimeout(time.Second)
	}
	client.Disconnect(250)
}

// decodeGyroPayload converts one MQTT message into a sample. Malformed
// messages produce a sample carrying ErrSampleInvalid.
func decodeGyroPayload(b []byte, cfg MQTTConfig, fallback tilt.Orientation, now time.Time) tilt.Sample {
	var p gyroPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return tilt.Sample{At: now, Err: fmt.Errorf("%w: %v", tilt.ErrSampleInvalid, err)}
	}
	if p.Gx == nil || p.Gy == nil || p.Gz == nil {
		return tilt.Sample{At: now, Err: fmt.Errorf("%w: gx, gy and gz are required", tilt.ErrSampleInvalid)}
	}

	scale, err := unitScale(cfg)
	if err != nil {
		return tilt.Sample{At: now, Err: err}
	}

	s := tilt.Sample{
		Rate:        tilt.AngularRate{X: *p.Gx * scale, Y: *p.Gy * scale, Z: *p.Gz * scale},
		Orientation: fallback,
		At:          now,
	}
	if p.Orientation != "" {
		// Unrecognized names become Unknown, which extracts a zero rate.
		s.Orientation, _ = tilt.ParseOrientation(p.Orientation)
	}
	if p.Timestamp != nil {
		s.At = *p.Timestamp
	}
	return s
}

var errBadUnits = errors.New("unsupported gyro units")

// unitScale returns the factor from payload units to rad/s.
func unitScale(cfg MQTTConfig) (float64, error) {
	switch cfg.Units {
	case UnitsRadPerSec, "":
		return 1, nil
	case UnitsDegPerSec:
		return math.Pi / 180, nil
	case UnitsRaw:
		if cfg.RawLSBPerDPS <= 0 {
			return 0, fmt.Errorf("%w: raw units need raw_lsb_per_dps > 0", errBadUnits)
		}
		return math.Pi / 180 / cfg.RawLSBPerDPS, nil
	default:
		return 0, fmt.Errorf("%w: %q", errBadUnits, cfg.Units)
	}
}
