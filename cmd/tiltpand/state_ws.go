package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tiltpan/internal/tilt"
	"tiltpan/internal/wire"
)

// State websocket.
//
// Viewers connect to the state endpoint and receive:
//   - "state_init" with a full snapshot, fetched through the daemon loop
//   - "offset_changed", "geometry_changed" and "monitoring_changed" as the
//     controller emits them
//
// Frames are JSON text with an envelope {type, ts, data}. offset_changed is
// coalesced latest-wins so a 500 Hz sensor does not flood slow viewers.
//
// Viewers may also send owner requests (set_viewport, user_panned, ...) in the
// same envelope the IPC socket uses.

// wsOutboundEvent is a typed message waiting to be marshaled.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time
}

// ============================================================================
// Hub
// ============================================================================

// Hub fans serialized frames out to every connected client.
//
// The client set belongs to Run's goroutine. Joins and leaves travel on one
// channel so a viewer that disconnects immediately is never registered after
// its own departure, and each send queue is closed exactly once, by Run.
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	membership chan membershipChange

	clients map[*Client]struct{}
	count   atomic.Int64

	sendBuf int
}

type membershipChange struct {
	client *Client
	join   bool
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int

	// BroadcastBuf is the hub inbound queue size.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 32
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		membership: make(chan membershipChange, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
}

// Register queues c to receive broadcasts.
func (h *Hub) Register(c *Client) { h.membership <- membershipChange{client: c, join: true} }

// Unregister queues c for removal. Unknown or already removed clients are
// ignored.
func (h *Hub) Unregister(c *Client) { h.membership <- membershipChange{client: c} }

// Run processes membership changes and broadcasts until ctx is canceled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			for c := range h.clients {
				h.drop(c, "shutdown")
			}
			return

		case m := <-h.membership:
			if !m.join {
				h.drop(m.client, "unregister")
				continue
			}
			if m.client.gone {
				continue
			}
			h.clients[m.client] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Info("ws client registered", "remote_addr", m.client.remoteAddr, "clients", len(h.clients))

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.drop(c, "slow_client")
				}
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int { return int(h.count.Load()) }

// drop disconnects c. Only Run calls it.
func (h *Hub) drop(c *Client, reason string) {
	if c.gone {
		return
	}
	c.gone = true
	_, registered := h.clients[c]
	delete(h.clients, c)
	h.count.Store(int64(len(h.clients)))

	if c.conn != nil {
		_ = c.conn.Close()
	}
	// Closing send makes writePump exit.
	close(c.send)
	if registered {
		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", len(h.clients))
	}
}

// BroadcastBytes enqueues a serialized frame. It never blocks; a full hub
// queue drops the frame.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	// events receives owner requests sent by the viewer. May be nil.
	events chan<- tilt.Event

	remoteAddr string
	logger     *slog.Logger

	// gone is set by the hub goroutine once send has been closed.
	gone bool
}

func NewClient(hub *Hub, conn *websocket.Conn, events chan<- tilt.Event, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		events:     events,
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// wsOffsetCoalesceWindow bounds how often offset_changed is sent.
	wsOffsetCoalesceWindow = 50 * time.Millisecond

	// wsMaxInbound caps a single viewer request.
	wsMaxInbound = 4096
)

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump handles control frames and forwards viewer requests to the daemon.
// It unregisters the client when the connection ends.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if c.hub != nil {
			c.hub.Unregister(c)
		}
	}()

	c.conn.SetReadLimit(wsMaxInbound)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logExit("readPump", err)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.forward(data)
	}
}

// forward decodes one viewer frame and queues it as an event. Bad frames are
// logged and ignored.
func (c *Client) forward(data []byte) {
	if c.events == nil {
		return
	}
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("ws invalid request", "remote_addr", c.remoteAddr, "error", err)
		return
	}
	ev, err := UnmarshalEvent(env)
	if err != nil {
		c.logger.Warn("ws invalid request", "remote_addr", c.remoteAddr, "type", env.Type, "error", err)
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("ws request dropped (daemon busy)", "remote_addr", c.remoteAddr, "type", env.Type)
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

// StateServer serves the state websocket.
type StateServer struct {
	logger *slog.Logger
	hub    *Hub

	// events reaches the daemon loop, for snapshots and viewer requests.
	events chan<- tilt.Event
}

func NewStateServer(logger *slog.Logger, events chan<- tilt.Event, cfg HubConfig) *StateServer {
	return &StateServer{
		logger: logger,
		hub:    NewHub(logger, cfg),
		events: events,
	}
}

func (s *StateServer) Hub() *Hub { return s.hub }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades, registers the client, then sends state_init.
func (s *StateServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, s.events, r.RemoteAddr, s.logger)
	s.hub.Register(client)

	// The pumps outlive the request; the hub and socket errors end them.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	snap, err := requestSnapshot(r.Context(), s.events, snapshotTimeout)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	msg, err := wire.NewFrame(wire.FrameStateInit, time.Now(), snap)
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}
	select {
	case client.send <- msg:
	default:
		s.hub.Unregister(client)
	}
}

// requestSnapshot asks the daemon loop for a snapshot and waits up to timeout.
func requestSnapshot(ctx context.Context, events chan<- tilt.Event, timeout time.Duration) (tilt.Snapshot, error) {
	if events == nil {
		return tilt.Snapshot{}, errors.New("no daemon event channel")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply := make(chan tilt.Snapshot, 1)
	select {
	case <-ctx.Done():
		return tilt.Snapshot{}, ctx.Err()
	case events <- tilt.RequestSnapshot{Reply: reply}:
	}

	select {
	case <-ctx.Done():
		return tilt.Snapshot{}, ctx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster serializes controller broadcasts and hands them to the hub.
// offset_changed is rate-limited to one frame per wsOffsetCoalesceWindow with
// the latest value winning; any other broadcast first flushes a pending offset
// so ordering is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan tilt.StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerC <-chan time.Time

	emit := func(ev wsOutboundEvent) {
		msg, err := wire.NewFrame(ev.Type, ev.At, ev.Data)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}
	flush := func() {
		if pending != nil {
			emit(*pending)
			pending = nil
		}
	}
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			stopTimer()
			return

		case <-timerC:
			if pending == nil {
				stopTimer()
				continue
			}
			flush()
			timer.Reset(wsOffsetCoalesceWindow)

		case b, ok := <-src:
			if !ok {
				flush()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == wire.FrameOffsetChanged {
				pending = &ev
				if timer == nil {
					timer = time.NewTimer(wsOffsetCoalesceWindow)
					timerC = timer.C
				}
				continue
			}

			flush()
			stopTimer()
			emit(ev)
		}
	}
}

func convertBroadcast(b tilt.StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case tilt.BroadcastOffsetChanged:
		return wsOutboundEvent{
			Type: wire.FrameOffsetChanged,
			Data: wire.Offset{
				X:          ev.Offset.X,
				Y:          ev.Offset.Y,
				Mode:       ev.Mode,
				DurationMS: ev.Animation.Duration.Milliseconds(),
				Curve:      ev.Animation.Curve,
			},
			At: ev.At,
		}, true

	case tilt.BroadcastGeometryChanged:
		return wsOutboundEvent{
			Type: wire.FrameGeometryChanged,
			Data: wire.GeometryChanged{Geometry: ev.Geometry, HasImage: ev.HasImage},
			At:   ev.At,
		}, true

	case tilt.BroadcastMonitoringChanged:
		return wsOutboundEvent{
			Type: wire.FrameMonitoringChanged,
			Data: wire.MonitoringChanged{Monitoring: ev.Monitoring, SensorAvailable: ev.SensorAvailable},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}

// broadcastType names b for logs.
func broadcastType(b tilt.StateBroadcast) string {
	if ev, ok := convertBroadcast(b); ok {
		return ev.Type
	}
	return "unknown"
}
