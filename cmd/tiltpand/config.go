package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tiltpan/internal/sensor"
	"tiltpan/internal/tilt"
)

// Config is the top-level YAML configuration for tiltpand.
//
// Defaults and validation live here so the rest of the daemon can assume a
// well-formed config. Flags are small overrides on top of the file.
type Config struct {
	Sensor     SensorConfig     `yaml:"sensor"`
	Tilt       TiltConfig       `yaml:"tilt"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	View       ViewConfig       `yaml:"view"`
	Output     OutputConfig     `yaml:"output"`
	IPC        IPCConfig        `yaml:"ipc"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type SensorConfig struct {
	// Source is one of synthetic, evdev, mqtt, external.
	Source string `yaml:"source"`

	// Orientation tags samples from sources that do not report one.
	Orientation string `yaml:"orientation"`

	// SampleIntervalUS is the nominal sampling interval in microseconds.
	SampleIntervalUS int `yaml:"sample_interval_us"`

	Evdev     EvdevFileConfig     `yaml:"evdev"`
	MQTT      MQTTFileConfig      `yaml:"mqtt"`
	Synthetic SyntheticFileConfig `yaml:"synthetic"`
}

type EvdevFileConfig struct {
	Device      string  `yaml:"device"`
	UnitsPerDPS float64 `yaml:"units_per_dps"`
}

type MQTTFileConfig struct {
	Broker       string  `yaml:"broker"`
	ClientID     string  `yaml:"client_id"`
	Topic        string  `yaml:"topic"`
	QoS          int     `yaml:"qos"`
	Units        string  `yaml:"units"`
	RawLSBPerDPS float64 `yaml:"raw_lsb_per_dps,omitempty"`
	TimeoutMS    int     `yaml:"timeout_ms"`
}

type SyntheticFileConfig struct {
	AmplitudeRadS float64 `yaml:"amplitude_rad_s"`
	PeriodMS      int     `yaml:"period_ms"`
}

type TiltConfig struct {
	RotationMinThreshold float64 `yaml:"rotation_min_threshold"`
	RotationFactor       float64 `yaml:"rotation_factor"`
	AnimationMS          int     `yaml:"animation_ms"`
}

type MonitoringConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ViewConfig seeds the layout before any client connects.
type ViewConfig struct {
	Viewport  SizeConfig  `yaml:"viewport"`
	Image     *SizeConfig `yaml:"image,omitempty"`
	ImageFile string      `yaml:"image_file,omitempty"`
}

type SizeConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

func (s SizeConfig) toSize() tilt.Size { return tilt.Size{Width: s.Width, Height: s.Height} }

// OutputConfig selects extra offset sinks besides websocket viewers.
type OutputConfig struct {
	MQTT MQTTOutputConfig `yaml:"mqtt"`
}

type MQTTOutputConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
	WSPath string `yaml:"ws_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Sensor: SensorConfig{
			Source:           sourceSynthetic,
			Orientation:      tilt.OrientationPortrait.String(),
			SampleIntervalUS: int(tilt.DefaultSampleInterval / time.Microsecond),
			Evdev: EvdevFileConfig{
				Device:      "/dev/input/event0",
				UnitsPerDPS: defaultEvdevUnitsPerDPS,
			},
			MQTT: MQTTFileConfig{
				Broker:       "tcp://127.0.0.1:1883",
				ClientID:     defaultMQTTClientID,
				Topic:        defaultMQTTTopic,
				Units:        sensor.UnitsRadPerSec,
				RawLSBPerDPS: defaultRawLSBPerDPS,
				TimeoutMS:    5000,
			},
			Synthetic: SyntheticFileConfig{
				AmplitudeRadS: defaultSyntheticAmplitude,
				PeriodMS:      defaultSyntheticPeriodMS,
			},
		},
		Tilt: TiltConfig{
			RotationMinThreshold: tilt.DefaultRotationMinimumThreshold,
			RotationFactor:       tilt.DefaultRotationFactor,
			AnimationMS:          int(tilt.DefaultAnimationDuration / time.Millisecond),
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
		},
		Output: OutputConfig{
			MQTT: MQTTOutputConfig{
				Broker:   "tcp://127.0.0.1:1883",
				ClientID: defaultMQTTClientID + "-offset",
				Topic:    "tiltpan/offset",
			},
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		HTTP: HTTPConfig{
			Listen: defaultHTTPListen,
			WSPath: defaultWSPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file over DefaultConfig.
// Unknown fields are rejected so typos surface as errors.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments may follow the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds pointers for flags that were explicitly set.
// A nil pointer leaves the config value untouched.
type FlagOverrides struct {
	Source      *string
	Orientation *string
	EvdevDevice *string
	MQTTBroker  *string
	MQTTTopic   *string

	Monitoring *bool
	ImageFile  *string

	IPCSocketPath *string
	HTTPListen    *string

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Source != nil {
		cfg.Sensor.Source = *o.Source
	}
	if o.Orientation != nil {
		cfg.Sensor.Orientation = *o.Orientation
	}
	if o.EvdevDevice != nil {
		cfg.Sensor.Evdev.Device = *o.EvdevDevice
	}
	if o.MQTTBroker != nil {
		cfg.Sensor.MQTT.Broker = *o.MQTTBroker
	}
	if o.MQTTTopic != nil {
		cfg.Sensor.MQTT.Topic = *o.MQTTTopic
	}
	if o.Monitoring != nil {
		cfg.Monitoring.Enabled = *o.Monitoring
	}
	if o.ImageFile != nil {
		cfg.View.ImageFile = *o.ImageFile
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides have been applied.
func (c *Config) Validate() error {
	switch c.Sensor.Source {
	case sourceSynthetic, sourceEvdev, sourceMQTT, sourceExternal:
	default:
		return fmt.Errorf("sensor.source must be one of %s, %s, %s, %s", sourceSynthetic, sourceEvdev, sourceMQTT, sourceExternal)
	}
	if _, err := tilt.ParseOrientation(c.Sensor.Orientation); err != nil {
		return fmt.Errorf("sensor.orientation: %w", err)
	}
	if c.Sensor.SampleIntervalUS <= 0 {
		return errors.New("sensor.sample_interval_us must be > 0")
	}

	switch c.Sensor.Source {
	case sourceEvdev:
		if c.Sensor.Evdev.Device == "" {
			return errors.New("sensor.evdev.device must not be empty")
		}
		if c.Sensor.Evdev.UnitsPerDPS <= 0 {
			return errors.New("sensor.evdev.units_per_dps must be > 0")
		}
	case sourceMQTT:
		m := c.Sensor.MQTT
		if m.Broker == "" || m.Topic == "" {
			return errors.New("sensor.mqtt.broker and sensor.mqtt.topic must not be empty")
		}
		if m.QoS < 0 || m.QoS > 2 {
			return errors.New("sensor.mqtt.qos must be 0, 1 or 2")
		}
		switch m.Units {
		case sensor.UnitsRadPerSec, sensor.UnitsDegPerSec:
		case sensor.UnitsRaw:
			if m.RawLSBPerDPS <= 0 {
				return errors.New("sensor.mqtt.raw_lsb_per_dps must be > 0 when units is raw")
			}
		default:
			return fmt.Errorf("sensor.mqtt.units must be %q, %q or %q", sensor.UnitsRadPerSec, sensor.UnitsDegPerSec, sensor.UnitsRaw)
		}
	case sourceSynthetic:
		if c.Sensor.Synthetic.PeriodMS <= 0 {
			return errors.New("sensor.synthetic.period_ms must be > 0")
		}
	}

	if c.Tilt.RotationMinThreshold < 0 {
		return errors.New("tilt.rotation_min_threshold must be >= 0")
	}
	if c.Tilt.RotationFactor <= 0 {
		return errors.New("tilt.rotation_factor must be > 0")
	}
	if c.Tilt.AnimationMS < 0 {
		return errors.New("tilt.animation_ms must be >= 0")
	}

	if c.View.Viewport.Width < 0 || c.View.Viewport.Height < 0 {
		return errors.New("view.viewport dimensions must be >= 0")
	}
	if c.View.Image != nil && c.View.ImageFile != "" {
		return errors.New("view.image and view.image_file are mutually exclusive")
	}
	if c.View.Image != nil && !c.View.Image.toSize().Valid() {
		return errors.New("view.image dimensions must be > 0")
	}

	if c.Output.MQTT.Enabled && (c.Output.MQTT.Broker == "" || c.Output.MQTT.Topic == "") {
		return errors.New("output.mqtt.enabled is true but output.mqtt.broker or output.mqtt.topic is empty")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Listen != "" && !strings.HasPrefix(c.HTTP.WSPath, "/") {
		return errors.New("http.ws_path must start with /")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToParams converts the file config into controller parameters.
func (c *Config) ToParams() tilt.Params {
	p := tilt.DefaultParams()
	p.RotationMinimumThreshold = c.Tilt.RotationMinThreshold
	p.RotationFactor = c.Tilt.RotationFactor
	p.SampleInterval = time.Duration(c.Sensor.SampleIntervalUS) * time.Microsecond
	p.Animation.Duration = time.Duration(c.Tilt.AnimationMS) * time.Millisecond
	return p
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return p
		}
		if p == "~" {
			return home
		}
		return filepath.Join(home, p[2:])
	}
	return p
}
