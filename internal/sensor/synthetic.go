package sensor

import (
	"math"
	"time"

	"tiltpan/internal/tilt"
)

// SyntheticConfig shapes the generated tilt motion.
type SyntheticConfig struct {
	// Amplitude is the peak y-axis rate in rad/s.
	Amplitude float64
	// Period is the duration of one full left-right sweep.
	Period time.Duration
}

// Synthetic is a sampler that sweeps the y-axis rate as a sine wave.
// It stands in for hardware on development machines.
type Synthetic struct {
	cfg    SyntheticConfig
	orient *OrientationTracker
	now    func() time.Time
	loop   loop
}

// NewSynthetic returns a synthetic sampler tagging samples with orient.
func NewSynthetic(cfg SyntheticConfig, orient *OrientationTracker) *Synthetic {
	if cfg.Period <= 0 {
		cfg.Period = 4 * time.Second
	}
	return &Synthetic{cfg: cfg, orient: orient, now: time.Now}
}

func (s *Synthetic) Name() string    { return "synthetic" }
func (s *Synthetic) Available() bool { return true }

func (s *Synthetic) Start(interval time.Duration, deliver func(tilt.Sample), fail func(error)) error {
	if interval <= 0 {
		interval = tilt.DefaultSampleInterval
	}
	return s.loop.start(func(stop <-chan struct{}) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		t0 := s.now()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				now := s.now()
				deliver(tilt.Sample{
					Rate:        tilt.AngularRate{Y: syntheticRate(s.cfg, now.Sub(t0))},
					Orientation: s.orient.Get(),
					At:          now,
				})
			}
		}
	})
}

func (s *Synthetic) Stop() { s.loop.halt() }

// syntheticRate is the y-axis rate at elapsed time into the sweep.
func syntheticRate(cfg SyntheticConfig, elapsed time.Duration) float64 {
	phase := float64(elapsed) / float64(cfg.Period)
	return cfg.Amplitude * math.Sin(2*math.Pi*phase)
}
