package main

import (
	"context"
	"log/slog"
	"time"

	"tiltpan/internal/sensor"
	"tiltpan/internal/tilt"
)

// daemon owns the controller state and is the only goroutine that touches it.
//
// Everything that can change the state arrives as a tilt.Event: owner calls
// from IPC and HTTP, samples and failures from the sampler goroutine. Each
// event is reduced, the resulting commands are executed here, and any
// observations they produce are reduced before the next event is read.
type daemon struct {
	state   *tilt.State
	params  tilt.Params
	sampler sensor.Sampler
	sink    OffsetSink
	out     chan<- tilt.StateBroadcast
	logger  *slog.Logger

	// samples and failures are fed by sampler callbacks. Sends never block:
	// a full queue drops the sample.
	samples  chan tilt.SampleReceived
	failures chan tilt.SamplingFailed

	// now is swapped in tests.
	now func() time.Time

	eventQueue []tilt.Event
	cmdQueue   []tilt.Command
}

func newDaemon(state *tilt.State, params tilt.Params, sampler sensor.Sampler, sink OffsetSink, out chan<- tilt.StateBroadcast, logger *slog.Logger) *daemon {
	if state == nil {
		state = &tilt.State{}
	}
	return &daemon{
		state:    state,
		params:   params,
		sampler:  sampler,
		sink:     sink,
		out:      out,
		logger:   logger,
		samples:  make(chan tilt.SampleReceived, sampleQueueSize),
		failures: make(chan tilt.SamplingFailed, 4),
		now:      time.Now,
	}
}

// run processes events until ctx is canceled or events is closed. A running
// sampler is stopped on exit.
func (d *daemon) run(ctx context.Context, events <-chan tilt.Event) {
	defer d.stopSampler()

	// An unavailable sensor is re-probed so a hot-plugged device is picked up,
	// and a failed session is retried while monitoring is still wanted.
	probe := time.NewTicker(sensorProbeInterval)
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				d.logger.Info("daemon stopping (events channel closed)")
				return
			}
			d.dispatch(ev)

		case s := <-d.samples:
			if !d.drainOwnerEvents(events) {
				d.logger.Info("daemon stopping (events channel closed)")
				return
			}
			d.dispatch(s)

		case f := <-d.failures:
			if !d.drainOwnerEvents(events) {
				d.logger.Info("daemon stopping (events channel closed)")
				return
			}
			d.logger.Warn("sampler failed", "session", f.Session, "error", f.Err)
			d.dispatch(f)

		case <-probe.C:
			if !d.state.Sensor.Available || (d.state.Monitoring.Wanted && !d.state.Monitoring.Active) {
				d.observeSensor()
			}
		}
	}
}

// drainOwnerEvents dispatches the owner events already queued when a sampler
// delivery is picked. An owner call that returned before the sample was pushed
// (disable in particular) is therefore reduced first. It reports false if
// events was closed.
func (d *daemon) drainOwnerEvents(events <-chan tilt.Event) bool {
	for n := len(events); n > 0; n-- {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			d.dispatch(ev)
		default:
			return true
		}
	}
	return true
}

// dispatch reduces ev and drains both queues.
func (d *daemon) dispatch(ev tilt.Event) {
	d.eventQueue = append(d.eventQueue, ev)
	d.flushEvents()
	d.flushCommands()
}

func (d *daemon) flushEvents() {
	for len(d.eventQueue) > 0 {
		ev := d.eventQueue[0]
		d.eventQueue = d.eventQueue[1:]

		rr := tilt.Reduce(d.state, ev, d.params, d.now())
		if rr.State != nil {
			d.state = rr.State
		}
		d.cmdQueue = append(d.cmdQueue, rr.Commands...)
		for _, b := range rr.Broadcasts {
			d.publish(b)
		}
	}
}

func (d *daemon) flushCommands() {
	for len(d.cmdQueue) > 0 {
		cmd := d.cmdQueue[0]
		d.cmdQueue = d.cmdQueue[1:]

		d.runEffect(cmd, func(obs tilt.Event) {
			d.eventQueue = append(d.eventQueue, obs)
		})

		// Reduce observations before the next command so follow-ups run in order.
		d.flushEvents()
	}
}

// publish hands a broadcast to observers without blocking the loop.
func (d *daemon) publish(b tilt.StateBroadcast) {
	if d.out == nil {
		return
	}
	select {
	case d.out <- b:
	default:
		d.logger.Warn("state broadcast queue full, dropping broadcast", "type", broadcastType(b))
	}
}

// deliverFunc tags samples with their session and queues them for the loop.
func (d *daemon) deliverFunc(session uint64) func(tilt.Sample) {
	return func(s tilt.Sample) {
		select {
		case d.samples <- tilt.SampleReceived{Session: session, Sample: s}:
		default:
			// Loop is behind; the next sample supersedes this one.
		}
	}
}

func (d *daemon) failFunc(session uint64) func(error) {
	return func(err error) {
		select {
		case d.failures <- tilt.SamplingFailed{Session: session, Err: err}:
		default:
		}
	}
}

func (d *daemon) stopSampler() {
	if d.sampler != nil && d.state.Monitoring.Active {
		d.sampler.Stop()
	}
}

// observeSensor reports the sampler's availability to the controller.
// Called at startup and from the probe ticker.
func (d *daemon) observeSensor() {
	if d.sampler == nil {
		d.dispatch(tilt.SensorObserved{Available: false})
		return
	}
	d.dispatch(tilt.SensorObserved{Name: d.sampler.Name(), Available: d.sampler.Available()})
}
