package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tiltpan/internal/imagesize"
	"tiltpan/internal/sensor"
	"tiltpan/internal/tilt"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("tiltpand v%s\n", version)
	fmt.Println("Gyroscope-driven pan controller for images wider or taller than their frame")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  tiltpand [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads angular-rate samples from a gyroscope and turns device tilt into a")
	fmt.Println("  scroll offset along the single axis in which an aspect-filled image")
	fmt.Println("  overflows its viewport. Offsets are pushed to viewers over a websocket")
	fmt.Println("  and, optionally, published to MQTT.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -source string")
	fmt.Printf("        Sample source: %s|%s|%s|%s (default %q)\n", sourceSynthetic, sourceEvdev, sourceMQTT, sourceExternal, sourceSynthetic)
	fmt.Println()
	fmt.Println("  -orientation string")
	fmt.Println("        Device orientation for sources that don't report one (default \"portrait\")")
	fmt.Println()
	fmt.Println("  -evdev-device string")
	fmt.Println("        Linux input event device exposing gyro axes (default \"/dev/input/event0\")")
	fmt.Println()
	fmt.Println("  -mqtt-broker string")
	fmt.Println("        MQTT broker URL for gyro samples (default \"tcp://127.0.0.1:1883\")")
	fmt.Println()
	fmt.Println("  -mqtt-topic string")
	fmt.Printf("        MQTT topic carrying gyro samples (default %q)\n", defaultMQTTTopic)
	fmt.Println()
	fmt.Println("  -monitoring bool")
	fmt.Println("        Start with monitoring enabled (default true)")
	fmt.Println()
	fmt.Println("  -image-file string")
	fmt.Println("        Image whose natural size is installed at startup")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -http-listen string")
	fmt.Printf("        HTTP listen address for the API and state websocket (default %q, empty disables)\n", defaultHTTPListen)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Synthetic sweep, useful with tiltpan-view")
	fmt.Println("  tiltpand -image-file ~/Pictures/panorama.jpg")
	fmt.Println()
	fmt.Println("  # DualSense motion sensor node")
	fmt.Println("  tiltpand -source evdev -evdev-device /dev/input/event21 -orientation landscape_left")
	fmt.Println()
	fmt.Println("  # IMU publishing on MQTT")
	fmt.Println("  tiltpand -source mqtt -mqtt-broker tcp://pi.local:1883 -mqtt-topic imu/raw")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - evdev needs read access to the device (root or the 'input' group)")
	fmt.Println("  - The viewport is normally reported by the viewer (set_viewport)")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		source      = flag.String("source", sourceSynthetic, "Sample source: synthetic|evdev|mqtt|external")
		orientation = flag.String("orientation", "portrait", "Device orientation for sources that don't report one")
		evdevDevice = flag.String("evdev-device", "/dev/input/event0", "Linux input event device exposing gyro axes")
		mqttBroker  = flag.String("mqtt-broker", "tcp://127.0.0.1:1883", "MQTT broker URL for gyro samples")
		mqttTopic   = flag.String("mqtt-topic", defaultMQTTTopic, "MQTT topic carrying gyro samples")
		monitoring  = flag.Bool("monitoring", true, "Start with monitoring enabled")
		imageFile   = flag.String("image-file", "", "Image whose natural size is installed at startup")
		ipcSocket   = flag.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
		httpListen  = flag.String("http-listen", defaultHTTPListen, "HTTP listen address (empty disables)")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		_           = flag.Bool("version", false, "Print version and exit")
		_           = flag.Bool("help", false, "Print help message")
	)
	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only explicitly set flags override the file.
	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			overrides.Source = source
		case "orientation":
			overrides.Orientation = orientation
		case "evdev-device":
			overrides.EvdevDevice = evdevDevice
		case "mqtt-broker":
			overrides.MQTTBroker = mqttBroker
		case "mqtt-topic":
			overrides.MQTTTopic = mqttTopic
		case "monitoring":
			overrides.Monitoring = monitoring
		case "image-file":
			overrides.ImageFile = imageFile
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocket
		case "http-listen":
			overrides.HTTPListen = httpListen
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(os.Stderr, logLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("tiltpand failed", "error", err)
		os.Exit(1)
	}
}

// run wires the daemon and blocks until SIGINT/SIGTERM.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orientation, _ := tilt.ParseOrientation(cfg.Sensor.Orientation)
	orient := sensor.NewOrientationTracker(orientation)

	sampler, external := newSampler(cfg, orient, logger)

	broadcasts := make(chan tilt.StateBroadcast, 256)
	events := make(chan tilt.Event, 64)

	sinks := multiSink{broadcastSink{out: broadcasts}}
	if cfg.Output.MQTT.Enabled {
		ms, closeSink, err := newMQTTSink(cfg.Output.MQTT, logger)
		if err != nil {
			return err
		}
		defer closeSink()
		sinks = append(sinks, ms)
	}

	d := newDaemon(&tilt.State{}, cfg.ToParams(), sampler, sinks, broadcasts, logger)

	// Initial explicit step: sensor, layout, then the monitoring wish. Reduced
	// before any goroutine can send events.
	d.observeSensor()
	d.dispatch(tilt.SetViewport{Size: cfg.View.Viewport.toSize()})
	if img, ok := initialImage(cfg, logger); ok {
		d.dispatch(tilt.SetImage{Size: img})
	}
	d.dispatch(tilt.SetMonitoring{Enabled: cfg.Monitoring.Enabled})

	logger.Info("tiltpand starting",
		"version", version,
		"sampler", sampler.Name(),
		"sensor_available", sampler.Available(),
		"monitoring", cfg.Monitoring.Enabled,
		"ipc", cfg.IPC.SocketPath,
		"http", cfg.HTTP.Listen)
	logger.Debug("configuration",
		"rotation_min_threshold", cfg.Tilt.RotationMinThreshold,
		"rotation_factor", cfg.Tilt.RotationFactor,
		"animation_ms", cfg.Tilt.AnimationMS,
		"sample_interval_us", cfg.Sensor.SampleIntervalUS,
		"orientation", orientation)

	handler := &ipcHandler{events: events, orient: orient, external: external, logger: logger}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.run(ctx, events)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runIPCServer(ctx, cfg.IPC.SocketPath, handler, logger); err != nil {
			errCh <- fmt.Errorf("IPC server: %w", err)
		}
	}()

	if cfg.HTTP.Listen != "" {
		ws := NewStateServer(logger, events, HubConfig{})

		wg.Add(3)
		go func() {
			defer wg.Done()
			ws.Hub().Run(ctx)
		}()
		go func() {
			defer wg.Done()
			RunBroadcaster(ctx, ws.Hub(), broadcasts, logger)
		}()
		go func() {
			defer wg.Done()
			mux := newHTTPMux(ws, cfg.HTTP.WSPath, handler, events)
			if err := runHTTPServer(ctx, cfg.HTTP.Listen, mux, logger); err != nil {
				errCh <- err
			}
		}()
	} else {
		// Nobody observes broadcasts; keep the queue drained.
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-broadcasts:
				}
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("shutdown timed out")
	}
	return runErr
}

// newSampler builds the configured sample source. external is non-nil only
// for the external source, which is fed through IPC.
func newSampler(cfg Config, orient *sensor.OrientationTracker, logger *slog.Logger) (sensor.Sampler, *sensor.External) {
	switch cfg.Sensor.Source {
	case sourceEvdev:
		return sensor.NewEvdev(sensor.EvdevConfig{
			Device:      ExpandPath(cfg.Sensor.Evdev.Device),
			UnitsPerDPS: cfg.Sensor.Evdev.UnitsPerDPS,
		}, orient), nil

	case sourceMQTT:
		m := cfg.Sensor.MQTT
		return sensor.NewMQTT(sensor.MQTTConfig{
			Broker:         m.Broker,
			ClientID:       m.ClientID,
			Topic:          m.Topic,
			QoS:            byte(m.QoS),
			Units:          m.Units,
			RawLSBPerDPS:   m.RawLSBPerDPS,
			ConnectTimeout: time.Duration(m.TimeoutMS) * time.Millisecond,
		}, orient, logger), nil

	case sourceExternal:
		ext := sensor.NewExternal(orient)
		return ext, ext

	default:
		return sensor.NewSynthetic(sensor.SyntheticConfig{
			Amplitude: cfg.Sensor.Synthetic.AmplitudeRadS,
			Period:    time.Duration(cfg.Sensor.Synthetic.PeriodMS) * time.Millisecond,
		}, orient), nil
	}
}

// initialImage resolves view.image or view.image_file. A file that can't be
// read is logged and leaves the controller without an image.
func initialImage(cfg Config, logger *slog.Logger) (tilt.Size, bool) {
	if cfg.View.Image != nil {
		return cfg.View.Image.toSize(), true
	}
	if cfg.View.ImageFile == "" {
		return tilt.Size{}, false
	}
	size, format, err := imagesize.FromFile(ExpandPath(cfg.View.ImageFile))
	if err != nil {
		logger.Warn("initial image unreadable, starting without image", "path", cfg.View.ImageFile, "error", err)
		return tilt.Size{}, false
	}
	logger.Info("image loaded", "path", cfg.View.ImageFile, "format", format, "size", size)
	return size, true
}
