package pet

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-moodpet/internal/log"
)

// Placement is where and how big the pet is drawn.
type Placement struct {
	Pet     Pet
	Scale   float64 // already multiplied by the pet's ScaleFactor
	X, Y    int
	Visible bool
	Mode    string
}

// View is what a renderer currently shows.
type View struct {
	Placement Placement
	Mood      Mood
	Label     string
	Bubble    string
	Bubbles   int
	Applies   int
}

// LogRenderer stands in for a window toolkit: it keeps the current view and
// logs every change. Animation playback and bubble layout belong to the real
// front end.
type LogRenderer struct {
	mu     sync.Mutex
	view   View
	logger *slog.Logger
}

// NewLogRenderer creates a renderer showing the Neutral mood.
func NewLogRenderer() *LogRenderer {
	return &LogRenderer{
		view:   View{Mood: Neutral},
		logger: log.Component("pet"),
	}
}

// Apply moves and scales the pet.
func (r *LogRenderer) Apply(p Placement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.view.Placement
	r.view.Placement = p
	r.view.Applies++
	if prev != p {
		r.logger.Debug("placement",
			"pet", p.Pet.Name, "x", p.X, "y", p.Y, "scale", p.Scale,
			"visible", p.Visible, "mode", p.Mode)
	}
	return nil
}

// ShowEmotion switches the animation to the label's mood.
func (r *LogRenderer) ShowEmotion(label string) error {
	mood := MoodFor(label)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.view.Label = label
	if mood == r.view.Mood {
		return nil
	}
	r.view.Mood = mood
	r.logger.Info("switching animation", "label", label, "mood", mood,
		"asset", r.view.Placement.Pet.AssetDir)
	return nil
}

// ShowMessage pops a speech bubble.
func (r *LogRenderer) ShowMessage(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.view.Bubble = text
	r.view.Bubbles++
	r.logger.Info("speech bubble", "text", text)
	return nil
}

// View returns a copy of what is shown.
func (r *LogRenderer) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}
