// Package web serves the control API: the controller side of the shared
// blackboard, stream start/stop, and websocket feeds of emotions and frames.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-moodpet/internal/log"
	"github.com/teslashibe/go-moodpet/pkg/blackboard"
	"github.com/teslashibe/go-moodpet/pkg/camera"
	"github.com/teslashibe/go-moodpet/pkg/hub"
	"github.com/teslashibe/go-moodpet/pkg/metrics"
	"github.com/teslashibe/go-moodpet/pkg/stream"
)

// Controller starts and stops the inference stream. *stream.Session
// satisfies it.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	State() stream.State
	Stats() stream.Stats
}

// Options wires the server to the rest of the process.
type Options struct {
	Port      string
	Board     *blackboard.Board
	Stream    Controller
	Camera    *camera.Manager
	Metrics   *metrics.Metrics
	StaticDir string // optional control panel assets
}

// Server is the control API server.
type Server struct {
	app     *fiber.App
	port    string
	opts    Options
	baseCtx context.Context

	eventHub  *hub.Hub
	cameraHub *hub.Hub

	logger *slog.Logger
}

// NewServer creates the server and registers every route.
func NewServer(opts Options) *Server {
	if opts.Board == nil {
		opts.Board = blackboard.New(blackboard.DefaultValues())
	}

	s := &Server{
		port:      opts.Port,
		opts:      opts,
		baseCtx:   context.Background(),
		eventHub:  hub.New("emotions"),
		cameraHub: hub.NewWithOptions("camera", hub.FrameOptions()),
		logger:    log.Component("web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "moodpet",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/state", s.handleGetState)
	api.Patch("/state", s.handlePatchState)
	api.Post("/pet/start", s.handleStart)
	api.Post("/pet/stop", s.handleStop)
	api.Get("/pets", s.handleListPets)
	api.Get("/stream", s.handleStreamStats)
	api.Get("/frame.jpg", s.handleFrame)
	api.Get("/camera", s.handleGetCamera)
	api.Patch("/camera", s.handlePatchCamera)
	api.Get("/camera/presets", s.handleCameraPresets)

	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/emotions", websocket.New(s.handleEmotionsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetStream attaches the stream controller. Call it before Start.
func (s *Server) SetStream(c Controller) {
	s.opts.Stream = c
}

// EventHub is where the stream broadcasts emotion events.
func (s *Server) EventHub() *hub.Hub {
	return s.eventHub
}

// CameraHub is where the stream broadcasts JPEG frames.
func (s *Server) CameraHub() *hub.Hub {
	return s.cameraHub
}

// Start runs the hubs and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	go s.eventHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("shutdown error", "error", err)
		}
	}()

	s.logger.Info("control server listening", "url", "http://localhost:"+s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}
