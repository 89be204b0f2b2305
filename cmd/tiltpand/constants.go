package main

import "time"

// Daemon defaults
const (
	defaultSocketPath = "/tmp/tiltpand.sock"
	defaultHTTPListen = ":8090"
	defaultWSPath     = "/ws/state"

	defaultEvdevUnitsPerDPS = 1024.0 // hid-sony / hid-playstation gyro resolution
	defaultMQTTTopic        = "tiltpan/gyro"
	defaultMQTTClientID     = "tiltpand"
	defaultRawLSBPerDPS     = 131.0 // MPU-9250 at ±250 dps

	defaultSyntheticAmplitude = 1.0  // rad/s
	defaultSyntheticPeriodMS  = 4000 // one sweep

	// Sampler deliveries are buffered between the sampler goroutine and the
	// daemon loop; at 500 Hz this is roughly half a second.
	sampleQueueSize = 256

	snapshotTimeout = 1 * time.Second

	sensorProbeInterval = 2 * time.Second
)

// Sensor sources selectable in config.
const (
	sourceSynthetic = "synthetic"
	sourceEvdev     = "evdev"
	sourceMQTT      = "mqtt"
	sourceExternal  = "external"
)
