package main

import (
	"errors"
	"testing"
	"time"

	"tiltpan/internal/tilt"
)

type failingSink struct{ err error }

func (f failingSink) ApplyOffset(tilt.CmdApplyOffset, time.Time) error { return f.err }

func TestBroadcastSink_EmitsOffsetChanged(t *testing.T) {
	out := make(chan tilt.StateBroadcast, 1)
	sink := broadcastSink{out: out}
	at := time.Unix(1700000000, 0)

	cmd := tilt.CmdApplyOffset{Offset: tilt.Point{Y: 30}, Mode: tilt.AspectVertical, Animation: tilt.DefaultAnimation()}
	if err := sink.ApplyOffset(cmd, at); err != nil {
		t.Fatalf("ApplyOffset: %v", err)
	}
	got := (<-out).(tilt.BroadcastOffsetChanged)
	if got.Offset != cmd.Offset || got.Mode != cmd.Mode || !got.At.Equal(at) {
		t.Fatalf("broadcast = %+v", got)
	}

	// Full queue: reported, never blocks.
	out <- tilt.BroadcastMonitoringChanged{}
	if err := sink.ApplyOffset(cmd, at); !errors.Is(err, errBroadcastQueueFull) {
		t.Fatalf("err = %v, want errBroadcastQueueFull", err)
	}
}

func TestMultiSink_JoinsErrorsAndKeepsGoing(t *testing.T) {
	boom := errors.New("boom")
	rec := &recordingSink{}
	sinks := multiSink{failingSink{err: boom}, rec}

	err := sinks.ApplyOffset(tilt.CmdApplyOffset{Offset: tilt.Point{X: 1}}, time.Now())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(rec.applied()) != 1 {
		t.Fatalf("second sink skipped after first failed")
	}
}
