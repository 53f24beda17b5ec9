package stream

import (
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-moodpet/pkg/blackboard"
	"github.com/teslashibe/go-moodpet/pkg/camera"
	"github.com/teslashibe/go-moodpet/pkg/classifier"
	"github.com/teslashibe/go-moodpet/pkg/detection"
	"github.com/teslashibe/go-moodpet/pkg/emotion"
	"github.com/teslashibe/go-moodpet/pkg/extract"
)

// step processes one frame and reports whether the debug window asked to quit.
func (r *runner) step(frame *camera.Frame) bool {
	s := r.session
	m := s.deps.Metrics
	now := frame.CapturedAt

	m.Frame()
	s.setStats(func(st *Stats) { st.Frames++ })

	text, faceRect, ok := r.classify(frame.Mat, now)

	// The published frame is the raw camera image, before the overlay.
	if s.cfg.PublishFrames {
		r.publishFrame(frame)
	}

	r.fps = smoothFPS(r.fps, now.Sub(r.lastTick).Seconds())
	r.lastTick = now
	m.FPS(r.fps)
	s.setStats(func(st *Stats) { st.FPS = r.fps })

	if r.display == nil {
		return false
	}
	if !ok {
		text = emotion.NoFace
	}
	drawOverlay(&frame.Mat, faceRect, text, r.fps)
	return r.display.Show(frame.Mat)
}

// classify runs detection through decision. ok is false when the frame was
// skipped because of an error; skipped frames publish nothing.
func (r *runner) classify(frame gocv.Mat, now time.Time) (text string, face image.Rectangle, ok bool) {
	s := r.session
	m := s.deps.Metrics
	start := time.Now()

	boxes, err := s.deps.Detector.Detect(frame)
	if err != nil {
		r.skip("face detection failed", err)
		return "", image.Rectangle{}, false
	}

	box, found := detection.SelectLargest(boxes)
	if !found {
		r.noFace()
		return emotion.NoFace, image.Rectangle{}, true
	}

	regions, err := r.extractor.Extract(frame, box)
	if errors.Is(err, extract.ErrEmptyCrop) {
		r.noFace()
		return emotion.NoFace, image.Rectangle{}, true
	}
	if err != nil {
		r.skip("region extraction failed", err)
		return "", image.Rectangle{}, false
	}
	defer regions.Close()

	full, mouth, err := r.model.Classify(regions.Full, regions.Mouth)
	if err != nil {
		r.skip("classification failed", err)
		return "", image.Rectangle{}, false
	}

	// One non-finite value would poison the smoothed state for good.
	p := emotion.Fuse(full, mouth, s.cfg.MouthWeight)
	if !full.Finite() || !mouth.Finite() || !p.Valid(1e-6) {
		r.skip("classification failed", fmt.Errorf("%w: non-finite logits", classifier.ErrBadOutput))
		return "", image.Rectangle{}, false
	}
	label, conf, smoothed := r.smoother.Update(p)
	m.Inference(time.Since(start))

	r.publish(label.String(), conf, smoothed, now)
	return overlayText(label.String(), conf, true), regions.FaceRect, true
}

func (r *runner) noFace() {
	s := r.session
	r.smoother.Skip()
	s.deps.Metrics.NoFace()
	s.setStats(func(st *Stats) {
		st.NoFace++
		st.Label = emotion.NoFace
	})
	if s.board != nil {
		s.board.SetDetectedEmotion(emotion.NoFace)
	}
}

func (r *runner) skip(msg string, err error) {
	r.session.deps.Metrics.Skipped()
	r.session.setStats(func(st *Stats) { st.Skipped++ })
	r.logger.Warn(msg, "error", err, "frame", r.seq)
}

// publish delivers a decision to the callback, the event queue, the event
// hub and the blackboard, in that order.
func (r *runner) publish(label string, conf float64, scores emotion.Scores, now time.Time) {
	s := r.session
	m := s.deps.Metrics

	r.logger.Debug("emotion", "label", label, "confidence", conf, "frame", r.seq)

	if s.callback != nil {
		r.invoke(label, conf, scores)
	}

	ev := Event{
		SessionID:  r.id,
		Seq:        r.seq,
		Label:      label,
		Confidence: conf,
		Scores:     scores,
		At:         now,
	}
	if s.queue.post(ev) {
		m.EventDropped()
	}
	if s.deps.EventHub != nil {
		if err := s.deps.EventHub.BroadcastJSON(ev); err != nil {
			r.logger.Debug("event broadcast failed", "error", err)
		}
	}

	if s.board != nil {
		s.board.SetDetectedEmotion(label)
	}

	m.Face(label)
	s.setStats(func(st *Stats) {
		st.Faces++
		st.Label = label
	})
}

// invoke calls the user callback, containing any panic.
func (r *runner) invoke(label string, conf float64, scores emotion.Scores) {
	defer func() {
		if rec := recover(); rec != nil {
			r.session.deps.Metrics.CallbackPanic()
			r.logger.Error("emotion callback panicked", "panic", rec, "frame", r.seq)
		}
	}()
	r.session.callback(label, conf, scores)
}

func (r *runner) publishFrame(frame *camera.Frame) {
	s := r.session
	if s.board == nil && s.deps.FrameHub == nil {
		return
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame.Mat, []int{gocv.IMWriteJpegQuality, s.cfg.JPEGQuality})
	if err != nil {
		r.logger.Debug("frame encode failed", "error", err)
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	if s.board != nil {
		size := frame.Size()
		s.board.SetFrame(&blackboard.Frame{
			JPEG:       data,
			Width:      size.X,
			Height:     size.Y,
			CapturedAt: frame.CapturedAt,
		})
	}
	if s.deps.FrameHub != nil {
		s.deps.FrameHub.BroadcastBinary(data)
	}
}
