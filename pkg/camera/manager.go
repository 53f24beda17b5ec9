package camera

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrInvalidConfig wraps Validate failures.
	ErrInvalidConfig = errors.New("invalid camera config")

	// ErrUnknownPreset is returned for a preset name not in Presets.
	ErrUnknownPreset = errors.New("unknown camera preset")
)

// Manager holds the camera settings the next stream will open with. The
// control API edits it while a stream may be running.
type Manager struct {
	mu     sync.RWMutex
	config Config

	// OnConfigChange is called before a new config is committed. An error
	// rejects the change.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a camera manager holding cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates cfg, offers it to OnConfigChange and commits it.
func (m *Manager) SetConfig(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OnConfigChange != nil {
		if err := m.OnConfigChange(cfg); err != nil {
			return fmt.Errorf("apply camera config: %w", err)
		}
	}
	m.config = cfg
	return nil
}

// UpdateConfig applies a partial update decoded from JSON. The optional
// "preset" key is applied first and keeps the current device; the other
// keys are Config's JSON fields and override it. Values of the wrong type
// and unknown keys are rejected, and nothing is committed on error.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	fields := make(map[string]interface{}, len(params))
	for k, v := range params {
		fields[k] = v
	}

	if raw, ok := fields["preset"]; ok {
		name, _ := raw.(string)
		preset := GetPreset(name)
		if preset == nil {
			return fmt.Errorf("%w: %v", ErrUnknownPreset, raw)
		}
		device := cfg.Device
		cfg = *preset
		cfg.Device = device
		delete(fields, "preset")
	}

	if len(fields) > 0 {
		data, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the current config as a generic map.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	data, _ := json.Marshal(m.GetConfig())
	var out map[string]interface{}
	json.Unmarshal(data, &out)
	return out
}
