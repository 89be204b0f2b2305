package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"tiltpan/internal/imagesize"
	"tiltpan/internal/sensor"
	"tiltpan/internal/tilt"
	"tiltpan/internal/wire"
)

// ipcHandler turns owner requests into controller events, or serves them
// directly when they concern the daemon rather than the controller.
type ipcHandler struct {
	events chan<- tilt.Event

	// orient is updated by set_orientation.
	orient *sensor.OrientationTracker

	// external receives injected samples. Nil unless sensor.source is external.
	external *sensor.External

	logger *slog.Logger
}

// handle serves one request.
func (h *ipcHandler) handle(ctx context.Context, env wire.Envelope) wire.Response {
	switch env.Type {
	case wire.TypeSetOrientation:
		var o wire.Orientation
		if err := decodeData(env, &o); err != nil {
			return errorResponse(err)
		}
		parsed, err := tilt.ParseOrientation(o.Orientation)
		if err != nil {
			return errorResponse(err)
		}
		h.orient.Set(parsed)
		h.logger.Info("orientation set", "orientation", parsed)
		return wire.Response{Status: wire.StatusOK}

	case wire.TypeSample:
		if h.external == nil {
			return errorResponse(fmt.Errorf("sample: %w: sensor.source is not external", tilt.ErrSensorUnavailable))
		}
		var in wire.Sample
		if err := decodeData(env, &in); err != nil {
			return errorResponse(err)
		}
		s := tilt.Sample{Rate: tilt.AngularRate{X: in.X, Y: in.Y, Z: in.Z}}
		if in.Orientation != "" {
			o, err := tilt.ParseOrientation(in.Orientation)
			if err != nil {
				return errorResponse(err)
			}
			s.Orientation = o
		}
		if !h.external.Push(s) {
			return errorResponse(errors.New("sample dropped: monitoring is disabled"))
		}
		return wire.Response{Status: wire.StatusOK}

	case wire.TypeGetState:
		snap, err := requestSnapshot(ctx, h.events, snapshotTimeout)
		if err != nil {
			return errorResponse(fmt.Errorf("get_state: %w", err))
		}
		return wire.Response{Status: wire.StatusOK, State: &snap}

	case wire.TypeSetImage:
		var img wire.Image
		if err := decodeData(env, &img); err != nil {
			return errorResponse(err)
		}
		if img.Path != "" {
			size, format, err := imagesize.FromFile(ExpandPath(img.Path))
			if err != nil {
				return errorResponse(err)
			}
			h.logger.Info("image loaded", "path", img.Path, "format", format, "size", size)
			return h.enqueue(tilt.SetImage{Size: size})
		}
	}

	ev, err := UnmarshalEvent(env)
	if err != nil {
		return errorResponse(fmt.Errorf("parse request: %w", err))
	}
	return h.enqueue(ev)
}

func (h *ipcHandler) enqueue(ev tilt.Event) wire.Response {
	select {
	case h.events <- ev:
		return wire.Response{Status: wire.StatusOK}
	default:
		return errorResponse(errors.New("event queue full"))
	}
}

func errorResponse(err error) wire.Response {
	return wire.Response{Status: wire.StatusError, Error: err.Error()}
}

// runIPCServer serves the unix socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, h *ipcHandler, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Closing the listener unblocks Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		go handleIPCConnection(ctx, conn, h, logger)
	}
}

// handleIPCConnection answers each request line with one response line.
func handleIPCConnection(ctx context.Context, conn net.Conn, h *ipcHandler, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		logger.Debug("IPC received", "line", string(line))

		var env wire.Envelope
		var resp wire.Response
		if err := json.Unmarshal(line, &env); err != nil {
			resp = errorResponse(fmt.Errorf("unmarshal envelope: %w", err))
		} else {
			resp = h.handle(ctx, env)
		}

		if resp.Status == wire.StatusError {
			logger.Debug("IPC request rejected", "type", env.Type, "error", resp.Error)
		}
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug("IPC read error", "error", err)
	}
	logger.Debug("IPC connection closed")
}
