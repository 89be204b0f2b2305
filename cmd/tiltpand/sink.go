package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tiltpan/internal/tilt"
)

// OffsetSink receives every offset the controller asks the view to apply.
// ApplyOffset is called from the daemon goroutine and must not block for long.
type OffsetSink interface {
	ApplyOffset(cmd tilt.CmdApplyOffset, at time.Time) error
}

// broadcastSink forwards applied offsets to state observers as
// offset_changed messages.
type broadcastSink struct {
	out chan<- tilt.StateBroadcast
}

var errBroadcastQueueFull = errors.New("broadcast queue full")

func (s broadcastSink) ApplyOffset(cmd tilt.CmdApplyOffset, at time.Time) error {
	if s.out == nil {
		return nil
	}
	select {
	case s.out <- tilt.BroadcastOffsetChanged{Offset: cmd.Offset, Mode: cmd.Mode, Animation: cmd.Animation, At: at}:
		return nil
	default:
		return errBroadcastQueueFull
	}
}

// offsetMessage is the retained MQTT payload on the offset topic.
type offsetMessage struct {
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	Mode       tilt.AspectMode `json:"mode"`
	DurationMS int64           `json:"duration_ms"`
	Curve      tilt.Curve      `json:"curve"`
	Ts         time.Time       `json:"ts"`
}

// mqttSink publishes offsets for remote displays.
type mqttSink struct {
	client mqtt.Client
	topic  string
}

// newMQTTSink connects to the broker. The returned close func disconnects.
func newMQTTSink(cfg MQTTOutputConfig, logger *slog.Logger) (*mqttSink, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	logger.Info("mqtt offset publisher connected", "broker", cfg.Broker, "topic", cfg.Topic)

	return &mqttSink{client: client, topic: cfg.Topic}, func() { client.Disconnect(250) }, nil
}

// ApplyOffset publishes without waiting for the broker ack.
func (s *mqttSink) ApplyOffset(cmd tilt.CmdApplyOffset, at time.Time) error {
	payload, err := json.Marshal(offsetMessage{
		X:          cmd.Offset.X,
		Y:          cmd.Offset.Y,
		Mode:       cmd.Mode,
		DurationMS: cmd.Animation.Duration.Milliseconds(),
		Curve:      cmd.Animation.Curve,
		Ts:         at.UTC(),
	})
	if err != nil {
		return err
	}
	s.client.Publish(s.topic, 0, true, payload)
	return nil
}

// multiSink fans out to every sink and joins their errors.
type multiSink []OffsetSink

func (m multiSink) ApplyOffset(cmd tilt.CmdApplyOffset, at time.Time) error {
	var errs []error
	for _, s := range m {
		if err := s.ApplyOffset(cmd, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
