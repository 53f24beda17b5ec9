package camera

// Preset names.
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset480p    = "480p"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetLow     = "low"
)

// Preset is a named camera configuration offered by the control panel.
type Preset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Config      Config `json:"config"`
}

func sized(w, h, fps, quality int) Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = w, h
	cfg.Framerate, cfg.Quality = fps, quality
	return cfg
}

// PresetList returns the presets in display order.
func PresetList() []Preset {
	return []Preset{
		{PresetDefault, "1280x720 at 30fps, what the webcam is asked for on start", DefaultConfig()},
		{PresetLegacy, "640x480 for webcams without 720p", LegacyConfig()},
		{Preset480p, "640x480 at 30fps", sized(640, 480, 30, 80)},
		{Preset720p, "1280x720 at 30fps", sized(1280, 720, 30, 80)},
		// Detection gets slower; only worth it when the user sits far away.
		{Preset1080p, "1920x1080 at 30fps", sized(1920, 1080, 30, 80)},
		{PresetLow, "320x240 at 15fps for small machines", sized(320, 240, 15, 60)},
	}
}

// Presets returns all presets keyed by name.
func Presets() map[string]Config {
	out := make(map[string]Config)
	for _, p := range PresetList() {
		out[p.Name] = p.Config
	}
	return out
}

// PresetNames returns the preset names in display order.
func PresetNames() []string {
	list := PresetList()
	names := make([]string, len(list))
	for i, p := range list {
		names[i] = p.Name
	}
	return names
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	for _, p := range PresetList() {
		if p.Name == name {
			cfg := p.Config
			return &cfg
		}
	}
	return nil
}
