package main

import (
	"fmt"

	"tiltpan/internal/tilt"
)

// runEffect executes one reducer-emitted command and reports outcomes that
// the controller must know about through onEvent.
//
// It may perform I/O. It never calls Reduce itself.
func (d *daemon) runEffect(cmd tilt.Command, onEvent func(tilt.Event)) {
	now := d.now()

	switch c := cmd.(type) {
	case tilt.CmdStartSampling:
		if d.sampler == nil {
			onEvent(tilt.SamplingFailed{Session: c.Session, Err: errNoSampler})
			return
		}
		if err := d.sampler.Start(c.Interval, d.deliverFunc(c.Session), d.failFunc(c.Session)); err != nil {
			d.logger.Error("sampler start failed", "sampler", d.sampler.Name(), "session", c.Session, "error", err)
			onEvent(tilt.SamplingFailed{Session: c.Session, Err: err})
			return
		}
		d.logger.Info("monitoring started", "sampler", d.sampler.Name(), "session", c.Session, "interval", c.Interval)

	case tilt.CmdStopSampling:
		if d.sampler == nil {
			return
		}
		d.sampler.Stop()
		d.logger.Info("monitoring stopped", "sampler", d.sampler.Name(), "session", c.Session)

	case tilt.CmdApplyOffset:
		if d.sink == nil {
			return
		}
		if err := d.sink.ApplyOffset(c, now); err != nil {
			d.logger.Warn("apply offset failed", "command", c.String(), "error", err)
			return
		}
		d.logger.Debug("offset applied", "x", c.Offset.X, "y", c.Offset.Y, "mode", c.Mode, "animation", c.Animation.String())

	case tilt.CmdPublishSnapshot:
		if c.Reply == nil {
			d.logger.Warn("state snapshot requested with nil reply channel")
			return
		}
		select {
		case c.Reply <- c.Snapshot:
		default:
			d.logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		d.logger.Warn("unknown command type", "error", errUnknownCommand{cmd: cmd})
	}
}

var errNoSampler = fmt.Errorf("no sampler configured: %w", tilt.ErrSensorUnavailable)

type errUnknownCommand struct {
	cmd tilt.Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
