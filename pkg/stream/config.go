// Package stream runs the realtime emotion pipeline: it reads camera frames,
// finds a face, classifies it, smooths the result and publishes each
// decision to a callback, a bounded event queue and the shared blackboard.
package stream

import (
	"fmt"

	"github.com/teslashibe/go-moodpet/pkg/emotion"
)

// Config holds stream tunables.
type Config struct {
	// MouthWeight scales the mouth head's logits before fusion.
	MouthWeight float64 `yaml:"mouth_weight" json:"mouth_weight"`
	// Decay is the EMA weight kept from the previous smoothed state.
	Decay float64 `yaml:"decay" json:"decay"`

	// QueueSize bounds the event queue; the oldest event is dropped when full.
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// PublishFrames JPEG-encodes every frame into the blackboard frame slot
	// and the camera hub.
	PublishFrames bool `yaml:"publish_frames" json:"publish_frames"`
	JPEGQuality   int  `yaml:"jpeg_quality" json:"jpeg_quality"`

	// WindowName titles the debug overlay window.
	WindowName string `yaml:"window_name" json:"window_name"`

	// MaxReadFailures consecutive camera read errors end the stream.
	MaxReadFailures int `yaml:"max_read_failures" json:"max_read_failures"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MouthWeight:     emotion.DefaultMouthWeight,
		Decay:           emotion.DefaultDecay,
		QueueSize:       16,
		PublishFrames:   true,
		JPEGQuality:     80,
		WindowName:      "FER-7cls",
		MaxReadFailures: 30,
	}
}

// Validate checks if the config values are within valid ranges.
func (c *Config) Validate() []string {
	var errors []string

	if c.MouthWeight < 0 {
		errors = append(errors, "mouth_weight must not be negative")
	}
	if c.Decay < 0 || c.Decay >= 1 {
		errors = append(errors, "decay must be in [0, 1)")
	}
	if c.QueueSize < 1 {
		errors = append(errors, "queue_size must be at least 1")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errors = append(errors, "jpeg_quality must be between 1 and 100")
	}
	if c.MaxReadFailures < 1 {
		errors = append(errors, fmt.Sprintf("max_read_failures must be at least 1 (got %d)", c.MaxReadFailures))
	}

	return errors
}
