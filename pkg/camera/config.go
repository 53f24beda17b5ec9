// Package camera provides the webcam frame source and its runtime-configurable
// settings.
package camera

import "fmt"

// Config holds all camera configuration parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// Device is a camera index ("0") or a capture URL/file path.
	Device string `json:"device" yaml:"device"`

	// === Resolution ===
	Width     int `json:"width" yaml:"width"`         // Requested frame width in pixels
	Height    int `json:"height" yaml:"height"`       // Requested frame height in pixels
	Framerate int `json:"framerate" yaml:"framerate"` // Requested FPS
	Quality   int `json:"quality" yaml:"quality"`     // JPEG quality 1-100 for the frame slot

	// Mirror flips frames horizontally, like a selfie preview.
	Mirror bool `json:"mirror" yaml:"mirror"`
}

// Limits accepted by Validate.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the 1280x720 configuration the pipeline negotiates
// with the webcam by default.
func DefaultConfig() Config {
	return Config{
		Device:    "0",
		Width:     1280,
		Height:    720,
		Framerate: 30,
		Quality:   80,
		Mirror:    false,
	}
}

// LegacyConfig returns a 640x480 configuration.
// Use this if the webcam cannot do 720p.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device is required")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
