package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-moodpet/internal/log"
	"github.com/teslashibe/go-moodpet/pkg/blackboard"
	"github.com/teslashibe/go-moodpet/pkg/camera"
	"github.com/teslashibe/go-moodpet/pkg/classifier"
	"github.com/teslashibe/go-moodpet/pkg/detection"
	"github.com/teslashibe/go-moodpet/pkg/emotion"
	"github.com/teslashibe/go-moodpet/pkg/extract"
	"github.com/teslashibe/go-moodpet/pkg/hub"
	"github.com/teslashibe/go-moodpet/pkg/metrics"
)

// Callback receives every decision synchronously on the inference
// goroutine. It must return quickly; a panic is recovered and logged.
type Callback func(label string, confidence float64, scores [7]float64)

// Deps are the collaborators of a session. OpenSource and OpenClassifier
// run during Starting; what they return is owned and closed by the run.
// Detector is shared and outlives sessions.
type Deps struct {
	OpenSource     func() (camera.Source, error)
	OpenClassifier func() (classifier.DualHead, error)
	Detector       detection.Detector
	Extractor      *extract.Extractor

	// Optional.
	Metrics     *metrics.Metrics
	EventHub    *hub.Hub
	FrameHub    *hub.Hub
	OpenDisplay func(name string) Display
}

func (d *Deps) check() error {
	switch {
	case d.OpenSource == nil:
		return fmt.Errorf("%w: frame source", ErrMissingDependency)
	case d.OpenClassifier == nil:
		return fmt.Errorf("%w: classifier", ErrMissingDependency)
	case d.Detector == nil:
		return fmt.Errorf("%w: face detector", ErrMissingDependency)
	}
	return nil
}

// Stats are cumulative counters for the current or last run.
type Stats struct {
	SessionID string     `json:"session_id"`
	State     string     `json:"state"`
	Frames    uint64     `json:"frames"`
	Faces     uint64     `json:"faces"`
	NoFace    uint64     `json:"no_face"`
	Skipped   uint64     `json:"skipped"`
	Dropped   uint64     `json:"events_dropped"`
	FPS       float64    `json:"fps"`
	Label     string     `json:"label"`
	Reason    StopReason `json:"stop_reason,omitempty"`
	StartedAt time.Time  `json:"started_at"`
}

// Session owns one inference stream at a time. It can be run again after
// it returns to Stopped; each run gets a fresh smoother and session ID.
type Session struct {
	cfg      Config
	deps     Deps
	callback Callback
	board    *blackboard.Board
	debug    bool

	state  atomic.Int32
	queue  *queue
	logger *slog.Logger

	mu      sync.Mutex
	src     camera.Source // open source of the current run
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
	stats   Stats
}

// NewSession creates a stopped session. board and callback may be nil.
func NewSession(cfg Config, deps Deps, callback Callback, showDebugWindow bool, board *blackboard.Board) *Session {
	done := make(chan struct{})
	close(done)
	return &Session{
		cfg:      cfg,
		deps:     deps,
		callback: callback,
		board:    board,
		debug:    showDebugWindow,
		queue:    newQueue(cfg.QueueSize),
		logger:   log.Component("stream"),
		done:     done,
	}
}

// Run starts a stream and blocks until it stops. It is the blocking form
// of the pipeline entry point; launch it in a goroutine to start without
// blocking.
func Run(ctx context.Context, cfg Config, deps Deps, callback Callback, showDebugWindow bool, board *blackboard.Board) error {
	return NewSession(cfg, deps, callback, showDebugWindow, board).Run(ctx)
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Events is the message-passing view of decisions. The queue is bounded;
// slow readers lose the oldest events.
func (s *Session) Events() <-chan Event {
	return s.queue.events()
}

// Dropped returns how many events were evicted from the queue.
func (s *Session) Dropped() uint64 {
	return s.queue.dropped.Load()
}

// Stats returns a copy of the run counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.State = s.State().String()
	st.Dropped = s.Dropped()
	return st
}

// Err returns the error that ended the last run, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Run acquires the camera and model and processes frames until the
// blackboard's running flag is cleared, ctx is cancelled, the debug window
// quit key is pressed or the source ends. Startup failures are returned
// and leave the running flag untouched.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	err := s.run(ctx)
	cancel()
	close(done)
	return err
}

// Start launches Run on its own goroutine. Only ErrAlreadyRunning is
// reported synchronously; use Wait or Err for the outcome of the run.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if err := s.run(ctx); err != nil {
			s.logger.Error("stream ended with error", "error", err)
		}
	}()
	return nil
}

// Stop clears the running flag and cancels the current run. It does not
// wait; call Wait for that.
func (s *Session) Stop() {
	if s.board != nil {
		s.board.SetRunning(false)
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ApplyCamera forwards new capture settings to the device of a running
// stream. Without a running stream, or with a source that cannot be
// reconfigured, it does nothing and the settings apply on the next start.
func (s *Session) ApplyCamera(cfg camera.Config) error {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()

	rc, ok := src.(camera.Reconfigurable)
	if !ok {
		return nil
	}
	if err := rc.Apply(cfg); err != nil {
		if errors.Is(err, camera.ErrClosed) {
			return nil
		}
		return err
	}
	s.logger.Info("camera reconfigured", "negotiated", rc.Negotiated())
	return nil
}

// Wait blocks until the current run has returned to Stopped.
func (s *Session) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	<-done
	return s.Err()
}

func (s *Session) setStats(f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}

func (s *Session) finish(reason StopReason, err error) {
	s.mu.Lock()
	s.stats.Reason = reason
	s.lastErr = err
	s.mu.Unlock()
	s.state.Store(int32(Stopped))
}

func (s *Session) run(ctx context.Context) (err error) {
	id := uuid.New().String()
	logger := s.logger.With("session", id)
	s.setStats(func(st *Stats) {
		*st = Stats{SessionID: id, StartedAt: time.Now()}
	})

	if err := s.deps.check(); err != nil {
		s.finish(ReasonStartup, err)
		return err
	}
	smoother, err := emotion.NewSmoother(s.cfg.Decay)
	if err != nil {
		s.finish(ReasonStartup, err)
		return err
	}

	logger.Info("starting stream")
	src, err := s.deps.OpenSource()
	if err != nil {
		err = fmt.Errorf("open camera: %w", err)
		s.finish(ReasonStartup, err)
		return err
	}
	model, err := s.deps.OpenClassifier()
	if err != nil {
		src.Close()
		err = fmt.Errorf("load classifier: %w", err)
		s.finish(ReasonStartup, err)
		return err
	}

	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
	if rc, ok := src.(camera.Reconfigurable); ok {
		logger.Info("camera opened", "negotiated", rc.Negotiated())
	}

	var display Display
	if s.debug {
		open := s.deps.OpenDisplay
		if open == nil {
			open = func(name string) Display { return NewWindow(name) }
		}
		display = open(s.cfg.WindowName)
	}

	extractor := s.deps.Extractor
	if extractor == nil {
		extractor = extract.New(0)
	}

	r := &runner{
		session:   s,
		id:        id,
		logger:    logger,
		src:       src,
		model:     model,
		extractor: extractor,
		smoother:  smoother,
		display:   display,
	}

	if s.board != nil {
		s.board.SetRunning(true)
	}
	s.state.Store(int32(Running))
	logger.Info("stream running")

	reason, err := r.loop(ctx)

	s.state.Store(int32(Stopping))
	logger.Info("stopping stream", "reason", reason)
	if s.board != nil {
		s.board.SetRunning(false)
	}
	if display != nil {
		display.Close()
	}
	model.Close()
	s.mu.Lock()
	s.src = nil
	s.mu.Unlock()
	src.Close()

	s.finish(reason, err)
	logger.Info("stream stopped", "frames", s.Stats().Frames)
	return err
}

// runner is the state of one run, touched only by the inference goroutine.
type runner struct {
	session   *Session
	id        string
	logger    *slog.Logger
	src       camera.Source
	model     classifier.DualHead
	extractor *extract.Extractor
	smoother  *emotion.Smoother
	display   Display

	seq      uint64
	fps      float64
	lastTick time.Time
}

func (r *runner) loop(ctx context.Context) (StopReason, error) {
	s := r.session
	frame := camera.Frame{Mat: gocv.NewMat()}
	defer frame.Close()

	failures := 0
	r.lastTick = time.Now()
	for {
		if ctx.Err() != nil {
			return ReasonContext, nil
		}
		if s.board != nil && !s.board.Running() {
			return ReasonFlag, nil
		}

		if err := r.src.Read(&frame.Mat); err != nil {
			if errors.Is(err, io.EOF) {
				return ReasonSourceEnd, nil
			}
			failures++
			r.logger.Warn("camera read failed", "error", err, "consecutive", failures)
			if failures >= s.cfg.MaxReadFailures {
				return ReasonReadErrors, fmt.Errorf("%w: %d consecutive failures", camera.ErrReadFailed, failures)
			}
			continue
		}
		failures = 0

		r.seq++
		frame.Seq = r.seq
		frame.CapturedAt = time.Now()
		if quit := r.step(&frame); quit {
			return ReasonQuitKey, nil
		}
	}
}
