//go:build !linux

package sensor

import (
	"fmt"
	"time"

	"tiltpan/internal/tilt"
)

// Evdev is only functional on Linux; elsewhere it reports no sensor.
type Evdev struct {
	cfg EvdevConfig
}

func NewEvdev(cfg EvdevConfig, _ *OrientationTracker) *Evdev { return &Evdev{cfg: cfg} }

func (e *Evdev) Name() string    { return "evdev:" + e.cfg.Device }
func (e *Evdev) Available() bool { return false }

func (e *Evdev) Start(time.Duration, func(tilt.Sample), func(error)) error {
	return fmt.Errorf("evdev: %w: not supported on this platform", tilt.ErrSensorUnavailable)
}

func (e *Evdev) Stop() {}
