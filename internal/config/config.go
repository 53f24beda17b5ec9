// Package config loads the moodpet configuration tree.
//
// Precedence, lowest first: built-in defaults, the YAML file, MOODPET_*
// environment variables, then command-line flags applied by the binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-moodpet/pkg/bridge"
	"github.com/teslashibe/go-moodpet/pkg/camera"
	"github.com/teslashibe/go-moodpet/pkg/classifier"
	"github.com/teslashibe/go-moodpet/pkg/detection"
	"github.com/teslashibe/go-moodpet/pkg/stream"
)

// Environment overrides.
const (
	EnvCamera   = "MOODPET_CAMERA"
	EnvModel    = "MOODPET_MODEL"
	EnvPort     = "MOODPET_PORT"
	EnvLogLevel = "MOODPET_LOG_LEVEL"
	EnvRemote   = "MOODPET_REMOTE"
)

// DefaultPort is the control API port.
const DefaultPort = "8088"

// WebConfig configures the control API.
type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      string `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
	// Remote is the control API a standalone bridge polls.
	Remote string `yaml:"remote"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Config is the full configuration tree.
type Config struct {
	Camera     camera.Config     `yaml:"camera"`
	Detection  detection.Config  `yaml:"detection"`
	Classifier classifier.Config `yaml:"classifier"`
	Stream     stream.Config     `yaml:"stream"`
	Bridge     bridge.Config     `yaml:"bridge"`
	Web        WebConfig         `yaml:"web"`
	Log        LogConfig         `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Camera:     camera.DefaultConfig(),
		Detection:  detection.DefaultConfig(),
		Classifier: classifier.DefaultConfig(),
		Stream:     stream.DefaultConfig(),
		Bridge:     bridge.DefaultConfig(),
		Web: WebConfig{
			Enabled: true,
			Port:    DefaultPort,
			Remote:  "http://localhost:" + DefaultPort,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv applies MOODPET_* overrides read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvCamera); v != "" {
		c.Camera.Device = v
	}
	if v := getenv(EnvModel); v != "" {
		c.Classifier.ModelPath = v
	}
	if v := getenv(EnvPort); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return &ConfigError{Field: "web.port", Message: EnvPort + " must be a port number, got " + strconv.Quote(v)}
		}
		c.Web.Port = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvRemote); v != "" {
		c.Web.Remote = v
	}
	return nil
}

// Validate checks every section and joins the problems into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(section string, problems []string) {
		for _, p := range problems {
			errs = append(errs, &ConfigError{Field: section, Message: p})
		}
	}

	add("camera", c.Camera.Validate())
	add("detection", c.Detection.Validate())
	add("classifier", c.Classifier.Validate())
	add("stream", c.Stream.Validate())
	add("bridge", c.Bridge.Validate())

	if c.Web.Enabled {
		if n, err := strconv.Atoi(c.Web.Port); err != nil || n <= 0 || n > 65535 {
			add("web", []string{"port must be between 1 and 65535"})
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("log", []string{"format must be text or json"})
	}

	return errors.Join(errs...)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
