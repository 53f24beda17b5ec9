// Package classifier runs the two-headed facial expression model.
//
// The model takes a whole-face tensor and a mouth tensor and returns raw
// 7-class logits for each head. Fusion and smoothing live in pkg/emotion.
package classifier

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-moodpet/pkg/emotion"
	"github.com/teslashibe/go-moodpet/pkg/extract"
)

// Backend names.
const (
	BackendDNN         = "dnn"
	BackendONNXRuntime = "onnxruntime"
)

var (
	// ErrModelLoad is returned when the model cannot be loaded. It is fatal
	// for a stream.
	ErrModelLoad = errors.New("classifier: model load failed")

	// ErrBadOutput is returned when a head does not produce 7 finite logits.
	ErrBadOutput = errors.New("classifier: bad model output")
)

// DualHead classifies a face from its full and mouth crops.
type DualHead interface {
	Classify(full, mouth extract.Tensor) (emotion.Logits, emotion.Logits, error)
	Close() error
}

// Config holds classifier configuration
type Config struct {
	Backend   string `yaml:"backend" json:"backend"`
	ModelPath string `yaml:"model_path" json:"model_path"`
	InputSize int    `yaml:"input_size" json:"input_size"`

	InputFull   string `yaml:"input_full" json:"input_full"`
	InputMouth  string `yaml:"input_mouth" json:"input_mouth"`
	OutputFull  string `yaml:"output_full" json:"output_full"`
	OutputMouth string `yaml:"output_mouth" json:"output_mouth"`

	// SharedLibrary is the onnxruntime library path; empty uses the default lookup.
	SharedLibrary string `yaml:"shared_library" json:"shared_library"`
}

// DefaultConfig returns defaults for the exported two-head model.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendDNN,
		ModelPath:   "models/fer_dualhead.onnx",
		InputSize:   extract.DefaultInputSize,
		InputFull:   "full",
		InputMouth:  "mouth",
		OutputFull:  "logits_main",
		OutputMouth: "logits_mouth",
	}
}

// Validate checks if the config values are within valid ranges.
func (c *Config) Validate() []string {
	var errors []string

	if c.Backend != BackendDNN && c.Backend != BackendONNXRuntime {
		errors = append(errors, fmt.Sprintf("backend must be dnn or onnxruntime (got %q)", c.Backend))
	}
	if c.ModelPath == "" {
		errors = append(errors, "model_path is required")
	}
	if c.InputSize < 32 || c.InputSize > 1024 {
		errors = append(errors, "input_size must be between 32 and 1024")
	}
	if c.InputFull == "" || c.InputMouth == "" || c.OutputFull == "" || c.OutputMouth == "" {
		errors = append(errors, "input and output tensor names must be set")
	}

	return errors
}

// New builds the configured backend.
func New(cfg Config) (DualHead, error) {
	switch cfg.Backend {
	case BackendDNN, "":
		return NewDNN(cfg)
	case BackendONNXRuntime:
		return NewONNXRuntime(cfg)
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrModelLoad, cfg.Backend)
}

// toLogits copies exactly NumClasses finite values.
func toLogits(v []float32) (emotion.Logits, error) {
	var l emotion.Logits
	if len(v) != emotion.NumClasses {
		return l, fmt.Errorf("%w: got %d values", ErrBadOutput, len(v))
	}
	for i, x := range v {
		l[i] = float64(x)
	}
	if !l.Finite() {
		return emotion.Logits{}, fmt.Errorf("%w: non-finite logits %v", ErrBadOutput, v)
	}
	return l, nil
}

func checkTensor(t extract.Tensor, size int) error {
	if t.Blob.Ptr() == nil || t.Blob.Empty() {
		return fmt.Errorf("classifier: empty tensor")
	}
	if want := 3 * size * size; t.Size != size || t.Blob.Total() != want {
		return fmt.Errorf("classifier: tensor has %d values of side %d, want side %d", t.Blob.Total(), t.Size, size)
	}
	return nil
}
