package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"

	"tiltpan/internal/tilt"
	"tiltpan/internal/wire"
)

// tiltpan-view is a terminal viewer for tiltpand. It reports the terminal
// as the viewport, renders a test pattern as the image content, and animates
// the visible window the way a scroll view would.

const (
	frameInterval = 16 * time.Millisecond
	panStep       = 5.0 // points per arrow key
)

func main() {
	var (
		wsURL      = flag.String("ws", "ws://127.0.0.1:8090/ws/state", "tiltpand state websocket URL")
		cellAspect = flag.Float64("cell-aspect", 2.0, "Terminal cell height / width")
		imageW     = flag.Float64("image-width", 0, "Install an image of this natural width on connect (with -image-height)")
		imageH     = flag.Float64("image-height", 0, "Install an image of this natural height on connect (with -image-width)")
	)
	flag.Parse()

	if *cellAspect <= 0 {
		fmt.Fprintln(os.Stderr, "error: -cell-aspect must be > 0")
		os.Exit(1)
	}

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.Dial(*wsURL, nil)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *wsURL, err)
	}
	defer conn.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("screen init: %v", err)
	}
	defer screen.Fini()

	v := newViewer(screen, conn, *cellAspect)
	if *imageW > 0 && *imageH > 0 {
		v.send(wire.TypeSetImage, wire.Image{Width: *imageW, Height: *imageH})
	}
	if err := v.run(); err != nil {
		screen.Fini()
		log.Fatalf("%v", err)
	}
}

// viewer owns the screen and the websocket writer. All fields are touched
// only by run's goroutine.
type viewer struct {
	screen tcell.Screen
	conn   *websocket.Conn
	aspect float64

	geometry   tilt.Geometry
	hasImage   bool
	monitoring bool
	sensor     bool
	anim       *tilt.Animator
	status     string
}

func newViewer(screen tcell.Screen, conn *websocket.Conn, aspect float64) *viewer {
	return &viewer{
		screen: screen,
		conn:   conn,
		aspect: aspect,
		anim:   tilt.NewAnimator(tilt.Point{}),
	}
}

func (v *viewer) run() error {
	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	frames := make(chan wire.Frame, 64)
	readErr := make(chan error, 1)
	go readFrames(v.conn, frames, readErr)

	v.reportViewport()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				v.screen.Sync()
				v.reportViewport()
			case *tcell.EventKey:
				if v.handleKey(ev) {
					_ = v.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return nil
				}
			}

		case f := <-frames:
			v.apply(f, time.Now())

		case err := <-readErr:
			return fmt.Errorf("connection closed: %w", err)

		case now := <-ticker.C:
			v.draw(now)
		}
	}
}

// readFrames decodes server frames until the connection fails.
func readFrames(conn *websocket.Conn, out chan<- wire.Frame, errc chan<- error) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		var f wire.Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			continue
		}
		out <- f
	}
}

// handleKey reports whether the viewer should exit.
func (v *viewer) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyLeft:
		v.pan(-panStep, 0)
	case tcell.KeyRight:
		v.pan(panStep, 0)
	case tcell.KeyUp:
		v.pan(0, -panStep)
	case tcell.KeyDown:
		v.pan(0, panStep)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case 'm':
			v.send(wire.TypeSetMonitoring, wire.Monitoring{Enabled: !v.monitoring})
		case 'c':
			v.send(wire.TypeClearImage, nil)
		}
	}
	return false
}

// pan moves the view like a touch drag: locally at once, then reported.
func (v *viewer) pan(dx, dy float64) {
	if v.geometry.Mode == tilt.AspectNone {
		return
	}
	now := time.Now()
	cur := v.anim.Value(now)
	next := v.geometry.Project(tilt.Point{X: cur.X + dx, Y: cur.Y + dy}).Point()
	v.anim.Retarget(next, tilt.Immediate(), now)
	v.send(wire.TypeUserPanned, next)
}

func (v *viewer) reportViewport() {
	cols, rows := v.screen.Size()
	v.send(wire.TypeSetViewport, viewportSize(cols, rows, v.aspect))
}

func (v *viewer) send(typ string, data any) {
	env, err := wire.NewEnvelope(typ, data)
	if err != nil {
		v.status = err.Error()
		return
	}
	_ = v.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := v.conn.WriteJSON(env); err != nil {
		v.status = "send failed: " + err.Error()
	}
}

// apply folds one server frame into the local view state.
func (v *viewer) apply(f wire.Frame, now time.Time) {
	switch f.Type {
	case wire.FrameStateInit:
		var snap tilt.Snapshot
		if json.Unmarshal(f.Data, &snap) != nil {
			return
		}
		v.geometry, v.hasImage = snap.Geometry, snap.HasImage
		v.monitoring, v.sensor = snap.Monitoring, snap.SensorAvailable
		v.anim.Retarget(snap.Offset, tilt.Immediate(), now)

	case wire.FrameOffsetChanged:
		var off wire.Offset
		if json.Unmarshal(f.Data, &off) != nil {
			return
		}
		v.anim.Retarget(tilt.Point{X: off.X, Y: off.Y}, off.Animation(), now)

	case wire.FrameGeometryChanged:
		var g wire.GeometryChanged
		if json.Unmarshal(f.Data, &g) != nil {
			return
		}
		v.geometry, v.hasImage = g.Geometry, g.HasImage

	case wire.FrameMonitoringChanged:
		var m wire.MonitoringChanged
		if json.Unmarshal(f.Data, &m) != nil {
			return
		}
		v.monitoring, v.sensor = m.Monitoring, m.SensorAvailable
	}
}

func (v *viewer) draw(now time.Time) {
	v.screen.Clear()
	cols, rows := v.screen.Size()
	off := v.anim.Value(now)

	if v.hasImage && v.geometry.Content.Valid() {
		for row := 0; row < rows-1; row++ {
			for col := 0; col < cols; col++ {
				p := tilt.Point{X: off.X + float64(col), Y: off.Y + float64(row)*v.aspect}
				r, style := patternCell(p, v.geometry.Content)
				v.screen.SetContent(col, row, r, nil, style)
			}
		}
	} else {
		drawText(v.screen, 1, rows/2, tcell.StyleDefault.Foreground(tcell.ColorGray), "no image")
	}

	status := fmt.Sprintf(" %s  max=%.0f  offset=(%.1f, %.1f)  monitoring=%t sensor=%t  [m]onitor [c]lear [q]uit ",
		v.geometry.Mode, v.geometry.MaxOffset, off.X, off.Y, v.monitoring, v.sensor)
	if v.status != "" {
		status += " " + v.status
	}
	drawText(v.screen, 0, rows-1, tcell.StyleDefault.Reverse(true), status)
	v.screen.Show()
}

// viewportSize converts a terminal grid (minus the status line) into points.
func viewportSize(cols, rows int, aspect float64) tilt.Size {
	usable := rows - 1
	if usable < 0 {
		usable = 0
	}
	return tilt.Size{Width: float64(cols), Height: float64(usable) * aspect}
}

var patternColors = []tcell.Color{
	tcell.ColorNavy, tcell.ColorTeal, tcell.ColorGreen, tcell.ColorOlive,
	tcell.ColorMaroon, tcell.ColorPurple,
}

// patternCell renders the test image at content point p: bands across the
// content so movement on either axis is visible, with a frame on the edges.
func patternCell(p tilt.Point, content tilt.Size) (rune, tcell.Style) {
	if p.X < 1 || p.Y < 1 || p.X >= content.Width-1 || p.Y >= content.Height-1 {
		return '#', tcell.StyleDefault.Foreground(tcell.ColorWhite)
	}
	band := int(p.X/20) + int(p.Y/20)
	style := tcell.StyleDefault.Background(patternColors[band%len(patternColors)])
	if int(p.X)%10 == 0 {
		return '|', style.Foreground(tcell.ColorWhite)
	}
	return ' ', style
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
