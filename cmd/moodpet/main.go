// moodpet - realtime facial emotion detection driving a desktop pet
//
// Runs the camera inference stream, the control API and an in-process
// bridge that renders the pet through a logging renderer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-moodpet/internal/config"
	"github.com/teslashibe/go-moodpet/internal/log"
	"github.com/teslashibe/go-moodpet/pkg/blackboard"
	"github.com/teslashibe/go-moodpet/pkg/bridge"
	"github.com/teslashibe/go-moodpet/pkg/camera"
	"github.com/teslashibe/go-moodpet/pkg/classifier"
	"github.com/teslashibe/go-moodpet/pkg/detection"
	"github.com/teslashibe/go-moodpet/pkg/extract"
	"github.com/teslashibe/go-moodpet/pkg/metrics"
	"github.com/teslashibe/go-moodpet/pkg/pet"
	"github.com/teslashibe/go-moodpet/pkg/stream"
	"github.com/teslashibe/go-moodpet/pkg/web"
)

type options struct {
	configPath string
	image      string
	show       bool
	start      bool
	noBridge   bool
}

func main() {
	cfg, opts := parseFlags()

	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.Component("main")

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error:\n%v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts); err != nil {
		logger.Error("moodpet stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("moodpet stopped")
}

func run(ctx context.Context, cfg config.Config, opts options) error {
	logger := log.Component("main")

	board := blackboard.New(blackboard.DefaultValues())
	m := metrics.New()
	cams := camera.NewManager(cfg.Camera)

	locator, err := detection.NewLocator(cfg.Detection)
	if err != nil {
		return fmt.Errorf("face detector: %w", err)
	}
	defer locator.Close()
	logger.Info("face detector ready", "backend", locator.Backend(), "fallback", locator.FellBack())

	srv := web.NewServer(web.Options{
		Port:      cfg.Web.Port,
		Board:     board,
		Camera:    cams,
		Metrics:   m,
		StaticDir: cfg.Web.StaticDir,
	})

	deps := stream.Deps{
		OpenSource: func() (camera.Source, error) {
			if opts.image != "" {
				return camera.LoadStill(opts.image, 0)
			}
			return camera.Open(cams.GetConfig())
		},
		OpenClassifier: func() (classifier.DualHead, error) {
			return classifier.New(cfg.Classifier)
		},
		Detector:  locator,
		Extractor: extract.New(cfg.Classifier.InputSize),
		Metrics:   m,
		EventHub:  srv.EventHub(),
		FrameHub:  srv.CameraHub(),
	}

	callback := func(label string, confidence float64, scores [7]float64) {
		log.Debug("emotion", "label", label, "confidence", confidence)
	}

	session := stream.NewSession(cfg.Stream, deps, callback, opts.show, board)
	srv.SetStream(session)

	// Camera edits reach a running webcam at once. Switching devices is
	// refused while a stream runs.
	cams.OnConfigChange = func(c camera.Config) error {
		logger.Info("camera config changed", "device", c.Device, "width", c.Width, "height", c.Height)
		return session.ApplyCamera(c)
	}

	if cfg.Web.Enabled {
		srv.StartAsync(ctx)
	} else {
		// hubs still need a pump for the stream's broadcasts
		go srv.EventHub().Run(ctx)
		go srv.CameraHub().Run(ctx)
	}

	go func() {
		if err := m.RunProcessSampler(ctx, 500*time.Millisecond); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("process sampler stopped", "error", err)
		}
	}()

	if !opts.noBridge {
		renderer := pet.NewLogRenderer()
		b := bridge.New(cfg.Bridge, bridge.LocalSource{Board: board}, renderer, m)
		go b.Run(ctx)
	}

	// The debug window needs the stream on the main goroutine on some
	// platforms, so a started stream runs here rather than via the API.
	if opts.start || opts.image != "" || !cfg.Web.Enabled {
		logger.Info("starting stream")
		err := session.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if opts.image != "" || !cfg.Web.Enabled {
			return nil
		}
	}

	<-ctx.Done()
	session.Stop()
	session.Wait()
	return nil
}

func parseFlags() (config.Config, options) {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	device := flag.String("camera", "", "Camera device index or path (overrides config)")
	model := flag.String("model", "", "Path to the two-head ONNX classifier (overrides config)")
	backend := flag.String("backend", "", "Classifier backend: dnn or onnxruntime")
	port := flag.String("port", "", "Control API port")
	preset := flag.String("preset", "", "Camera preset: "+fmt.Sprint(camera.PresetNames()))
	level := flag.String("log-level", "", "Log level: debug, info, warn, error")
	noWeb := flag.Bool("no-web", false, "Disable the control API and run the stream immediately")
	flag.StringVar(&opts.image, "image", "", "Run on a still image instead of the webcam")
	flag.BoolVar(&opts.show, "show", false, "Show the debug window (press q to stop)")
	flag.BoolVar(&opts.start, "start", false, "Start the stream without waiting for the control panel")
	flag.BoolVar(&opts.noBridge, "no-bridge", false, "Do not run the in-process pet bridge")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}

	if *preset != "" {
		p := camera.GetPreset(*preset)
		if p == nil {
			fmt.Fprintf(os.Stderr, "❌ unknown camera preset %q\n", *preset)
			os.Exit(2)
		}
		device := cfg.Camera.Device
		cfg.Camera = *p
		cfg.Camera.Device = device
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *model != "" {
		cfg.Classifier.ModelPath = *model
	}
	if *backend != "" {
		cfg.Classifier.Backend = *backend
	}
	if *port != "" {
		cfg.Web.Port = *port
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}

	return cfg, opts
}
