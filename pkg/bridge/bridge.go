package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-moodpet/internal/log"
	"github.com/teslashibe/go-moodpet/pkg/blackboard"
	"github.com/teslashibe/go-moodpet/pkg/metrics"
	"github.com/teslashibe/go-moodpet/pkg/pet"
)

// Renderer draws the pet. Implementations must be safe to call from the
// bridge goroutine.
type Renderer interface {
	// Apply places the pet. It is called on every tick with the full state.
	Apply(p pet.Placement) error
	// ShowEmotion switches animation. Called only when the label changes.
	ShowEmotion(label string) error
	// ShowMessage pops a speech bubble.
	ShowMessage(text string) error
}

// Config holds bridge timing.
type Config struct {
	// Interval between state polls.
	Interval time.Duration `yaml:"interval" json:"interval"`
	// BubbleInterval between speech bubbles; zero disables bubbles.
	BubbleInterval time.Duration `yaml:"bubble_interval" json:"bubble_interval"`
	// BubbleDelay before the first bubble.
	BubbleDelay time.Duration `yaml:"bubble_delay" json:"bubble_delay"`
}

// DefaultConfig polls every 200ms and speaks every 4s after a 2s delay.
func DefaultConfig() Config {
	return Config{
		Interval:       200 * time.Millisecond,
		BubbleInterval: 4 * time.Second,
		BubbleDelay:    2 * time.Second,
	}
}

// Validate checks if the config values are within valid ranges.
func (c *Config) Validate() []string {
	var errors []string
	if c.Interval < 10*time.Millisecond {
		errors = append(errors, "interval must be at least 10ms")
	}
	if c.BubbleInterval < 0 || c.BubbleDelay < 0 {
		errors = append(errors, "bubble timings must not be negative")
	}
	return errors
}

// Bridge is the consumer-side poller.
type Bridge struct {
	cfg      Config
	source   Source
	renderer Renderer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	last     blackboard.Snapshot
	haveLast bool
	label    string
	dogIndex int
	ticks    uint64
	errors   uint64
}

// New creates a bridge. m may be nil.
func New(cfg Config, source Source, renderer Renderer, m *metrics.Metrics) *Bridge {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Bridge{
		cfg:      cfg,
		source:   source,
		renderer: renderer,
		metrics:  m,
		logger:   log.Component("bridge"),
	}
}

// Run polls until ctx is done. Source and renderer errors are logged and
// the loop carries on at the next tick.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	var bubbles <-chan time.Time
	var bubbleTicker *time.Ticker
	var delay <-chan time.Time
	if b.cfg.BubbleInterval > 0 {
		delay = time.After(b.cfg.BubbleDelay)
	}
	defer func() {
		if bubbleTicker != nil {
			bubbleTicker.Stop()
		}
	}()

	b.logger.Info("state bridge started", "interval", b.cfg.Interval)
	b.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("state bridge stopped")
			return
		case <-ticker.C:
			b.Tick(ctx)
		case <-delay:
			bubbleTicker = time.NewTicker(b.cfg.BubbleInterval)
			bubbles = bubbleTicker.C
			b.Bubble()
		case <-bubbles:
			b.Bubble()
		}
	}
}

// Tick performs one poll. The snapshot is taken without holding the lock so
// a slow source never stalls Bubble or Stats.
func (b *Bridge) Tick(ctx context.Context) {
	snap, err := b.source.Snapshot(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ticks++

	if err != nil {
		b.fail("state poll failed", err)
		return
	}
	b.last = snap
	b.haveLast = true

	p := pet.Resolve(snap.PetType)
	placement := pet.Placement{
		Pet:     p,
		Scale:   p.EffectiveScale(snap.Scale),
		X:       snap.X,
		Y:       snap.Y,
		Visible: snap.Running,
		Mode:    snap.Mode,
	}
	if err := b.renderer.Apply(placement); err != nil {
		b.fail("apply placement failed", err)
	}

	if snap.DetectedEmotion != b.label {
		if err := b.renderer.ShowEmotion(snap.DetectedEmotion); err != nil {
			b.fail("show emotion failed", err)
			return
		}
		b.label = snap.DetectedEmotion
	}
}

// Bubble pops the speech bubble for the current mode: the mood response in
// face mode, the next canned line in dog mode. Nothing is said while the pet
// is hidden.
func (b *Bridge) Bubble() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.haveLast || !b.last.Running {
		return
	}

	var text string
	if b.last.Mode == blackboard.ModeDog {
		text = pet.DogMessages[b.dogIndex%len(pet.DogMessages)]
		b.dogIndex++
	} else {
		text = pet.Response(pet.MoodFor(b.label))
	}
	if err := b.renderer.ShowMessage(text); err != nil {
		b.fail("show message failed", err)
	}
}

func (b *Bridge) fail(msg string, err error) {
	b.errors++
	b.metrics.BridgeError()
	b.logger.Warn(msg, "error", err)
}

// Stats reports tick and error counts.
func (b *Bridge) Stats() (ticks, errors uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ticks, b.errors
}
