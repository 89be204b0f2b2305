package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"tiltpan/internal/tilt"
	"tiltpan/internal/wire"
)

// tiltpan-ctl sends one request to tiltpand over its IPC socket.
//
// Usage:
//   tiltpan-ctl enable
//   tiltpan-ctl viewport 300 500
//   tiltpan-ctl image-file ~/Pictures/pano.jpg
//   tiltpan-ctl state

const requestTimeout = 3 * time.Second

func main() {
	socketPath := "/tmp/tiltpand.sock"

	args := os.Args[1:]
	if len(args) >= 1 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return
	}

	env, err := buildRequest(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	resp, err := wire.Send(socketPath, env, requestTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if resp.State != nil {
		out, _ := json.MarshalIndent(resp.State, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Println("ok")
}

// buildRequest maps command-line arguments onto a request envelope.
func buildRequest(args []string) (wire.Envelope, error) {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "enable", "on":
		return wire.NewEnvelope(wire.TypeSetMonitoring, wire.Monitoring{Enabled: true})

	case "disable", "off":
		return wire.NewEnvelope(wire.TypeSetMonitoring, wire.Monitoring{Enabled: false})

	case "viewport":
		w, h, err := parsePair(cmd, rest)
		if err != nil {
			return wire.Envelope{}, err
		}
		return wire.NewEnvelope(wire.TypeSetViewport, tilt.Size{Width: w, Height: h})

	case "image":
		w, h, err := parsePair(cmd, rest)
		if err != nil {
			return wire.Envelope{}, err
		}
		return wire.NewEnvelope(wire.TypeSetImage, wire.Image{Width: w, Height: h})

	case "image-file":
		if len(rest) != 1 {
			return wire.Envelope{}, fmt.Errorf("image-file requires a path")
		}
		return wire.NewEnvelope(wire.TypeSetImage, wire.Image{Path: rest[0]})

	case "clear-image":
		return wire.NewEnvelope(wire.TypeClearImage, nil)

	case "pan":
		x, y, err := parsePair(cmd, rest)
		if err != nil {
			return wire.Envelope{}, err
		}
		return wire.NewEnvelope(wire.TypeUserPanned, tilt.Point{X: x, Y: y})

	case "orientation":
		if len(rest) != 1 {
			return wire.Envelope{}, fmt.Errorf("orientation requires a name")
		}
		if _, err := tilt.ParseOrientation(rest[0]); err != nil {
			return wire.Envelope{}, err
		}
		return wire.NewEnvelope(wire.TypeSetOrientation, wire.Orientation{Orientation: rest[0]})

	case "sample":
		if len(rest) != 3 {
			return wire.Envelope{}, fmt.Errorf("sample requires X Y Z in rad/s")
		}
		var v [3]float64
		for i, s := range rest {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return wire.Envelope{}, fmt.Errorf("sample: invalid rate %q", s)
			}
			v[i] = f
		}
		return wire.NewEnvelope(wire.TypeSample, wire.Sample{X: v[0], Y: v[1], Z: v[2]})

	case "state", "status":
		return wire.NewEnvelope(wire.TypeGetState, nil)

	default:
		return wire.Envelope{}, fmt.Errorf("unknown command: %s", cmd)
	}
}

func parsePair(cmd string, rest []string) (float64, float64, error) {
	if len(rest) != 2 {
		return 0, 0, fmt.Errorf("%s requires two numbers", cmd)
	}
	a, err := strconv.ParseFloat(rest[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: invalid number %q", cmd, rest[0])
	}
	b, err := strconv.ParseFloat(rest[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: invalid number %q", cmd, rest[1])
	}
	return a, b, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `tiltpan-ctl - Control the tiltpand daemon via IPC

Usage:
  tiltpan-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/tiltpand.sock)

Commands:
  enable, on              Enable tilt monitoring
  disable, off            Disable tilt monitoring
  viewport <W> <H>        Report the visible frame size
  image <W> <H>           Install an image by natural size
  image-file <PATH>       Install an image by reading its header on the daemon host
  clear-image             Remove the image
  pan <X> <Y>             Report an offset set by touch panning
  orientation <NAME>      Set device orientation (portrait, portrait_upside_down,
                          landscape_left, landscape_right, face_up, face_down)
  sample <X> <Y> <Z>      Inject an angular rate in rad/s (external source only)
  state, status           Print the controller snapshot
  help, -h, --help        Show this help message

Examples:
  tiltpan-ctl viewport 300 500
  tiltpan-ctl image 1000 500
  tiltpan-ctl sample 0 5 0
  tiltpan-ctl -socket /run/tiltpand.sock state
`)
}
