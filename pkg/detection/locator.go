package detection

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-moodpet/internal/log"
	"gocv.io/x/gocv"
)

// Factory builds a detector backend from config.
type Factory func(Config) (Detector, error)

// Factories maps backend names to constructors.
func Factories() map[string]Factory {
	return map[string]Factory{
		BackendYuNet: func(c Config) (Detector, error) { return NewYuNet(c) },
		BackendPigo:  func(c Config) (Detector, error) { return NewPigo(c) },
		BackendHaar:  func(c Config) (Detector, error) { return NewHaar(c) },
	}
}

// Locator is the process-wide face locator. The backend is chosen once at
// construction and never changes afterwards.
type Locator struct {
	detector Detector
	backend  string
	fellBack bool
}

// NewLocator builds the configured primary backend, substituting the
// fallback if the primary cannot be constructed.
func NewLocator(cfg Config) (*Locator, error) {
	return NewLocatorWith(cfg, Factories())
}

// NewLocatorWith is NewLocator with explicit constructors.
func NewLocatorWith(cfg Config, factories map[string]Factory) (*Locator, error) {
	logger := log.Component("detection")

	primary, err := build(cfg.Backend, cfg, factories)
	if err == nil {
		logger.Info("face detector ready", "backend", cfg.Backend)
		return &Locator{detector: primary, backend: cfg.Backend}, nil
	}

	if cfg.Fallback == "" || cfg.Fallback == BackendNone || cfg.Fallback == cfg.Backend {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoDetector, cfg.Backend, err)
	}

	logger.Warn("primary face detector unavailable, using fallback for this process",
		"primary", cfg.Backend, "fallback", cfg.Fallback, "error", err)

	fallback, ferr := build(cfg.Fallback, cfg, factories)
	if ferr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDetector, errors.Join(err, ferr))
	}

	logger.Info("face detector ready", "backend", cfg.Fallback)
	return &Locator{detector: fallback, backend: cfg.Fallback, fellBack: true}, nil
}

func build(name string, cfg Config, factories map[string]Factory) (Detector, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown detector backend %q", name)
	}
	return f(cfg)
}

// Detect delegates to the selected backend.
func (l *Locator) Detect(frame gocv.Mat) ([]Box, error) {
	return l.detector.Detect(frame)
}

// Backend names the backend in use.
func (l *Locator) Backend() string {
	return l.backend
}

// FellBack reports whether the primary backend was replaced.
func (l *Locator) FellBack() bool {
	return l.fellBack
}

// Close releases the backend.
func (l *Locator) Close() error {
	return l.detector.Close()
}
