package detection

import "fmt"

// Config holds detector configuration
type Config struct {
	Backend  string `yaml:"backend" json:"backend"`   // primary backend, normally yunet
	Fallback string `yaml:"fallback" json:"fallback"` // pigo, haar or none

	// YuNet
	ModelPath        string  `yaml:"model_path" json:"model_path"`
	ConfidenceThresh float64 `yaml:"confidence" json:"confidence"`
	InputWidth       int     `yaml:"input_width" json:"input_width"`
	InputHeight      int     `yaml:"input_height" json:"input_height"`

	// Haar cascade XML
	HaarCascadePath  string  `yaml:"haar_cascade" json:"haar_cascade"`
	HaarScaleFactor  float64 `yaml:"haar_scale_factor" json:"haar_scale_factor"`
	HaarMinNeighbors int     `yaml:"haar_min_neighbors" json:"haar_min_neighbors"`

	// pigo
	PigoCascadePath string  `yaml:"pigo_cascade" json:"pigo_cascade"`
	PigoMinSize     int     `yaml:"pigo_min_size" json:"pigo_min_size"`
	PigoMaxSize     int     `yaml:"pigo_max_size" json:"pigo_max_size"`
	PigoMinQuality  float64 `yaml:"pigo_min_quality" json:"pigo_min_quality"`
}

// DefaultConfig returns production defaults for YuNet with a pigo fallback.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendYuNet,
		Fallback:         BackendPigo,
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
		HaarCascadePath:  "models/haarcascade_frontalface_default.xml",
		HaarScaleFactor:  1.1,
		HaarMinNeighbors: 5,
		PigoCascadePath:  "models/facefinder",
		PigoMinSize:      80,
		PigoMaxSize:      1000,
		PigoMinQuality:   5.0,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	validBackends := map[string]bool{BackendYuNet: true, BackendPigo: true, BackendHaar: true}
	if !validBackends[c.Backend] {
		errors = append(errors, fmt.Sprintf("backend must be yunet, pigo, or haar (got %q)", c.Backend))
	}
	validFallbacks := map[string]bool{BackendPigo: true, BackendHaar: true, BackendNone: true, "": true}
	if !validFallbacks[c.Fallback] {
		errors = append(errors, fmt.Sprintf("fallback must be pigo, haar, or none (got %q)", c.Fallback))
	}
	if c.ConfidenceThresh < 0 || c.ConfidenceThresh > 1 {
		errors = append(errors, "confidence must be between 0 and 1")
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		errors = append(errors, "input_width and input_height must be positive")
	}
	if c.HaarScaleFactor <= 1 {
		errors = append(errors, "haar_scale_factor must be greater than 1")
	}
	if c.HaarMinNeighbors < 0 {
		errors = append(errors, "haar_min_neighbors must not be negative")
	}
	if c.PigoMinSize <= 0 || c.PigoMaxSize < c.PigoMinSize {
		errors = append(errors, "pigo_min_size must be positive and not above pigo_max_size")
	}

	return errors
}
