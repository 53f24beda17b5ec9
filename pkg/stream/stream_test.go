package stream

import (
	"bytes"
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-moodpet/internal/log"
	"github.com/teslashibe/go-moodpet/pkg/blackboard"
	"github.com/teslashibe/go-moodpet/pkg/camera"
	"github.com/teslashibe/go-moodpet/pkg/classifier"
	"github.com/teslashibe/go-moodpet/pkg/detection"
	"github.com/teslashibe/go-moodpet/pkg/emotion"
	"github.com/teslashibe/go-moodpet/pkg/extract"
)

const tol = 1e-9

func init() {
	log.Discard()
}

// logitsOf returns logits whose softmax is exactly p.
func logitsOf(p [7]float64) emotion.Logits {
	var l emotion.Logits
	for i, v := range p {
		l[i] = math.Log(v)
	}
	return l
}

var fearful = [7]float64{0.05, 0.05, 0.6, 0.1, 0.05, 0.05, 0.1}

type fixture struct {
	frames   int
	boxes    []detection.Box
	classify func(full, mouth extract.Tensor) (emotion.Logits, emotion.Logits, error)

	still *camera.Still
	model *classifier.Mock
}

func (f *fixture) deps(t *testing.T) Deps {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 120, 150, 0), 120, 160, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { img.Close() })

	f.model = &classifier.Mock{ClassifyFunc: f.classify}
	return Deps{
		OpenSource: func() (camera.Source, error) {
			f.still = camera.NewStill(img, f.frames)
			return f.still, nil
		},
		OpenClassifier: func() (classifier.DualHead, error) { return f.model, nil },
		Detector: &detection.Mock{DetectFunc: func(gocv.Mat) ([]detection.Box, error) {
			return f.boxes, nil
		}},
		Extractor: extract.New(32),
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PublishFrames = false
	return cfg
}

func alwaysFearful(extract.Tensor, extract.Tensor) (emotion.Logits, emotion.Logits, error) {
	return logitsOf(fearful), emotion.Logits{}, nil
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", s.State(), want)
}

func TestRun_FearMergedIntoSurprise(t *testing.T) {
	f := &fixture{frames: 1, boxes: []detection.Box{{X: 40, Y: 30, W: 60, H: 60}}, classify: alwaysFearful}
	board := blackboard.New(blackboard.DefaultValues())

	var gotLabel string
	var gotConf float64
	var gotScores [7]float64
	calls := 0
	cb := func(label string, conf float64, scores [7]float64) {
		calls++
		gotLabel, gotConf, gotScores = label, conf, scores
	}

	if err := Run(context.Background(), testConfig(), f.deps(t), cb, false, board); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if calls != 1 {
		t.Fatalf("callback called %d times, want 1", calls)
	}
	if gotLabel != "Surprise" {
		t.Errorf("label = %q, want Surprise", gotLabel)
	}
	if math.Abs(gotConf-0.7) > tol {
		t.Errorf("confidence = %v, want 0.7", gotConf)
	}
	if gotScores[emotion.Fear] != 0 {
		t.Errorf("Fear should be merged away, got %v", gotScores[emotion.Fear])
	}
	if got := board.DetectedEmotion(); got != "Surprise" {
		t.Errorf("detected_emotion = %q", got)
	}
	if board.Running() {
		t.Error("running flag should be cleared after the stream stops")
	}
	if !f.model.Closed || f.model.Calls != 1 {
		t.Errorf("model calls=%d closed=%v", f.model.Calls, f.model.Closed)
	}
}

func TestRun_NoFaceWritesBoard(t *testing.T) {
	f := &fixture{frames: 3, classify: alwaysFearful}
	board := blackboard.New(blackboard.DefaultValues())
	calls := 0

	s := NewSession(testConfig(), f.deps(t), func(string, float64, [7]float64) { calls++ }, false, board)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if calls != 0 {
		t.Errorf("callback fired %d times without a face", calls)
	}
	if f.model.Calls != 0 {
		t.Errorf("classifier ran %d times without a face", f.model.Calls)
	}
	if got := board.DetectedEmotion(); got != emotion.NoFace {
		t.Errorf("detected_emotion = %q, want %q", got, emotion.NoFace)
	}
	st := s.Stats()
	if st.Frames != 3 || st.NoFace != 3 || st.Reason != ReasonSourceEnd {
		t.Errorf("stats = %+v", st)
	}
}

func TestRun_EmptyCropCountsAsNoFace(t *testing.T) {
	f := &fixture{frames: 1, boxes: []detection.Box{{X: 5000, Y: 5000, W: 10, H: 10}}, classify: alwaysFearful}
	board := blackboard.New(blackboard.DefaultValues())

	s := NewSession(testConfig(), f.deps(t), nil, false, board)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if board.DetectedEmotion() != emotion.NoFace {
		t.Errorf("detected_emotion = %q", board.DetectedEmotion())
	}
}

func TestRun_ClassifierErrorSkipsFrame(t *testing.T) {
	f := &fixture{
		frames: 2,
		boxes:  []detection.Box{{X: 40, Y: 30, W: 60, H: 60}},
		classify: func(extract.Tensor, extract.Tensor) (emotion.Logits, emotion.Logits, error) {
			return emotion.Logits{}, emotion.Logits{}, errors.New("inference failed")
		},
	}
	board := blackboard.New(blackboard.DefaultValues())
	calls := 0

	s := NewSession(testConfig(), f.deps(t), func(string, float64, [7]float64) { calls++ }, false, board)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if calls != 0 {
		t.Error("no partial result may reach the callback")
	}
	if board.DetectedEmotion() != "" {
		t.Errorf("detected_emotion = %q, want untouched", board.DetectedEmotion())
	}
	if st := s.Stats(); st.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", st.Skipped)
	}
}

func TestRun_CallbackPanicRecovered(t *testing.T) {
	f := &fixture{frames: 3, boxes: []detection.Box{{X: 40, Y: 30, W: 60, H: 60}}, classify: alwaysFearful}
	calls := 0
	cb := func(string, float64, [7]float64) {
		calls++
		panic("renderer exploded")
	}

	s := NewSession(testConfig(), f.deps(t), cb, false, nil)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Errorf("callback calls = %d, want 3", calls)
	}
	if st := s.Stats(); st.Faces != 3 {
		t.Errorf("faces = %d, want 3", st.Faces)
	}
}

func TestRun_StartupFailure(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Deps)
		want   error
	}{
		{
			name: "camera unavailable",
			modify: func(d *Deps) {
				d.OpenSource = func() (camera.Source, error) { return nil, camera.ErrCameraUnavailable }
			},
			want: camera.ErrCameraUnavailable,
		},
		{
			name: "model load",
			modify: func(d *Deps) {
				d.OpenClassifier = func() (classifier.DualHead, error) { return nil, classifier.ErrModelLoad }
			},
			want: classifier.ErrModelLoad,
		},
		{
			name:   "no detector",
			modify: func(d *Deps) { d.Detector = nil },
			want:   ErrMissingDependency,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fixture{frames: 1, classify: alwaysFearful}
			deps := f.deps(t)
			tc.modify(&deps)
			board := blackboard.New(blackboard.DefaultValues())

			s := NewSession(testConfig(), deps, nil, false, board)
			err := s.Run(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if board.Writes() != 0 {
				t.Errorf("board written %d times during a failed start", board.Writes())
			}
			if s.State() != Stopped || s.Stats().Reason != ReasonStartup {
				t.Errorf("state = %s reason = %q", s.State(), s.Stats().Reason)
			}
			if !errors.Is(s.Err(), tc.want) {
				t.Errorf("Err() = %v", s.Err())
			}
		})
	}
}

func TestSession_StateMachine(t *testing.T) {
	f := &fixture{frames: 0, boxes: []detection.Box{{X: 40, Y: 30, W: 60, H: 60}}, classify: alwaysFearful}
	deps := f.deps(t)

	var mu sync.Mutex
	var seen []State
	s := NewSession(testConfig(), deps, nil, false, blackboard.New(blackboard.DefaultValues()))
	open := deps.OpenSource
	s.deps.OpenSource = func() (camera.Source, error) {
		mu.Lock()
		seen = append(seen, s.State())
		mu.Unlock()
		return open()
	}

	if s.State() != Stopped {
		t.Fatalf("initial state = %s", s.State())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, s, Running)

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Run while running = %v, want ErrAlreadyRunning", err)
	}

	s.Stop()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if s.State() != Stopped {
		t.Errorf("state after stop = %s", s.State())
	}

	mu.Lock()
	if len(seen) != 1 || seen[0] != Starting {
		t.Errorf("camera acquired in states %v, want [starting]", seen)
	}
	mu.Unlock()

	// A stopped session can run again with a new ID.
	first := s.Stats().SessionID
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitState(t, s, Running)
	s.Stop()
	s.Wait()
	if s.Stats().SessionID == first {
		t.Error("restart should get a new session ID")
	}
}

func TestSession_RunningFlagStops(t *testing.T) {
	f := &fixture{frames: 0, classify: alwaysFearful}
	board := blackboard.New(blackboard.DefaultValues())
	s := NewSession(testConfig(), f.deps(t), nil, false, board)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, s, Running)
	if !board.Running() {
		t.Fatal("running flag should be set once Running")
	}

	board.SetRunning(false)
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if s.Stats().Reason != ReasonFlag {
		t.Errorf("reason = %q, want %q", s.Stats().Reason, ReasonFlag)
	}
}

func TestSession_ContextCancel(t *testing.T) {
	f := &fixture{frames: 0, classify: alwaysFearful}
	s := NewSession(testConfig(), f.deps(t), nil, false, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	waitState(t, s, Running)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.Stats().Reason != ReasonContext {
		t.Errorf("reason = %q", s.Stats().Reason)
	}
}

type quitDisplay struct {
	shown  int
	quitAt int
	closed bool
}

func (d *quitDisplay) Show(gocv.Mat) bool {
	d.shown++
	return d.shown >= d.quitAt
}

func (d *quitDisplay) Close() error {
	d.closed = true
	return nil
}

func TestRun_QuitKey(t *testing.T) {
	f := &fixture{frames: 0, boxes: []detection.Box{{X: 40, Y: 30, W: 60, H: 60}}, classify: alwaysFearful}
	deps := f.deps(t)
	d := &quitDisplay{quitAt: 2}
	deps.OpenDisplay = func(name string) Display {
		if name != "FER-7cls" {
			t.Errorf("window name = %q", name)
		}
		return d
	}

	s := NewSession(testConfig(), deps, nil, true, nil)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Stats().Reason != ReasonQuitKey || d.shown != 2 || !d.closed {
		t.Errorf("reason=%q shown=%d closed=%v", s.Stats().Reason, d.shown, d.closed)
	}
}

func TestRun_PublishesFrames(t *testing.T) {
	f := &fixture{frames: 1, classify: alwaysFearful}
	board := blackboard.New(blackboard.DefaultValues())
	cfg := testConfig()
	cfg.PublishFrames = true

	if err := Run(context.Background(), cfg, f.deps(t), nil, false, board); err != nil {
		t.Fatalf("Run: %v", err)
	}
	fr := board.Frame()
	if fr == nil {
		t.Fatal("frame slot empty")
	}
	if !bytes.HasPrefix(fr.JPEG, []byte{0xff, 0xd8}) {
		t.Error("frame slot does not hold a JPEG")
	}
	if fr.Width != 160 || fr.Height != 120 {
		t.Errorf("frame size %dx%d", fr.Width, fr.Height)
	}
}

func TestRun_EventsQueue(t *testing.T) {
	f := &fixture{frames: 20, boxes: []detection.Box{{X: 40, Y: 30, W: 60, H: 60}}, classify: alwaysFearful}
	cfg := testConfig()
	cfg.QueueSize = 4

	s := NewSession(cfg, f.deps(t), nil, false, nil)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if s.Dropped() != 16 {
		t.Errorf("dropped = %d, want 16", s.Dropped())
	}
	var seqs []uint64
	for len(s.Events()) > 0 {
		ev := <-s.Events()
		seqs = append(seqs, ev.Seq)
		if ev.Label != "Surprise" || ev.SessionID == "" {
			t.Errorf("event %+v", ev)
		}
	}
	want := []uint64{17, 18, 19, 20}
	if len(seqs) != len(want) {
		t.Fatalf("queued seqs %v, want %v", seqs, want)
	}
	for i := range want {
		if seqs[i] != want[i] {
			t.Errorf("queued seqs %v, want the newest %v", seqs, want)
			break
		}
	}
}

func TestRun_NonFiniteLogitsSkipFrame(t *testing.T) {
	inf := emotion.Logits{}
	inf[emotion.Happy] = math.Inf(1)
	nan := emotion.Logits{}
	nan[emotion.Sad] = math.NaN()

	outputs := []struct{ full, mouth emotion.Logits }{
		{logitsOf(fearful), emotion.Logits{}},
		{inf, emotion.Logits{}},
		{logitsOf(fearful), nan},
		{logitsOf(fearful), emotion.Logits{}},
	}
	call := 0
	f := &fixture{
		frames: len(outputs),
		boxes:  []detection.Box{{X: 40, Y: 30, W: 60, H: 60}},
		classify: func(extract.Tensor, extract.Tensor) (emotion.Logits, emotion.Logits, error) {
			o := outputs[call]
			call++
			return o.full, o.mouth, nil
		},
	}
	board := blackboard.New(blackboard.DefaultValues())

	var confs []float64
	var last string
	cb := func(label string, conf float64, scores [7]float64) {
		confs = append(confs, conf)
		last = label
		if !emotion.Scores(scores).Valid(1e-9) {
			t.Errorf("published invalid scores %v", scores)
		}
	}

	s := NewSession(testConfig(), f.deps(t), cb, false, board)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if st := s.Stats(); st.Skipped != 2 || st.Faces != 2 {
		t.Errorf("skipped=%d faces=%d, want 2 and 2", st.Skipped, st.Faces)
	}
	if len(confs) != 2 {
		t.Fatalf("callback calls = %d, want 2", len(confs))
	}
	for _, c := range confs {
		if math.IsNaN(c) || math.Abs(c-0.7) > tol {
			t.Errorf("confidence = %v, want 0.7", c)
		}
	}
	if last != "Surprise" || board.DetectedEmotion() != "Surprise" {
		t.Errorf("label = %q, board = %q", last, board.DetectedEmotion())
	}
}

// reconfigurableStill records camera settings pushed to an open source.
type reconfigurableStill struct {
	*camera.Still
	mu      sync.Mutex
	applied []camera.Config
	fail    error
}

func (r *reconfigurableStill) Apply(cfg camera.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.applied = append(r.applied, cfg)
	return nil
}

func (r *reconfigurableStill) Negotiated() image.Point {
	return image.Pt(160, 120)
}

func (r *reconfigurableStill) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.applied)
}

func TestSession_ApplyCamera(t *testing.T) {
	f := &fixture{frames: 0, classify: alwaysFearful}
	deps := f.deps(t)

	var src *reconfigurableStill
	open := deps.OpenSource
	deps.OpenSource = func() (camera.Source, error) {
		still, err := open()
		if err != nil {
			return nil, err
		}
		src = &reconfigurableStill{Still: still.(*camera.Still)}
		return src, nil
	}

	s := NewSession(testConfig(), deps, nil, false, blackboard.New(blackboard.DefaultValues()))

	// Not running: accepted, nothing to push to.
	if err := s.ApplyCamera(*camera.GetPreset(camera.PresetLow)); err != nil {
		t.Fatalf("ApplyCamera while stopped: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, s, Running)

	if err := s.ApplyCamera(*camera.GetPreset(camera.PresetLow)); err != nil {
		t.Fatalf("ApplyCamera: %v", err)
	}
	if src.count() != 1 {
		t.Errorf("applied %d configs, want 1", src.count())
	}

	src.mu.Lock()
	src.fail = errors.New("device change needs a restart")
	src.mu.Unlock()
	if err := s.ApplyCamera(camera.DefaultConfig()); err == nil {
		t.Error("device error should reach the caller")
	}

	s.Stop()
	s.Wait()
	if err := s.ApplyCamera(camera.DefaultConfig()); err != nil {
		t.Errorf("ApplyCamera after stop: %v", err)
	}
}
