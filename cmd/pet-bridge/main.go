// pet-bridge - polls a moodpet control API and drives the pet renderer
//
// The renderer here logs placements, emotions and speech bubbles; a GUI
// renderer implements the same bridge.Renderer interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-moodpet/internal/config"
	"github.com/teslashibe/go-moodpet/internal/log"
	"github.com/teslashibe/go-moodpet/pkg/bridge"
	"github.com/teslashibe/go-moodpet/pkg/pet"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	remote := flag.String("remote", "", "Control API base URL (overrides config)")
	interval := flag.Duration("interval", 0, "Poll interval (default from config, 200ms)")
	timeout := flag.Duration("timeout", time.Second, "HTTP timeout per poll")
	level := flag.String("log-level", "", "Log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}
	if *remote != "" {
		cfg.Web.Remote = *remote
	}
	if *interval > 0 {
		cfg.Bridge.Interval = *interval
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if errs := cfg.Bridge.Validate(); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "❌ bridge config: %v\n", errs)
		os.Exit(2)
	}

	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.Component("pet-bridge")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source := bridge.NewRemoteSource(cfg.Web.Remote, *timeout)
	b := bridge.New(cfg.Bridge, source, pet.NewLogRenderer(), nil)

	logger.Info("polling control API", "remote", cfg.Web.Remote, "interval", cfg.Bridge.Interval)
	b.Run(ctx)

	ticks, errs := b.Stats()
	logger.Info("bridge stopped", "ticks", ticks, "errors", errs)
}
