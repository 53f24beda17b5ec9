package emotion

import "fmt"

// DefaultDecay is the β of the moving average: the weight kept by history.
const DefaultDecay = 0.7

// Smoother holds the exponential moving average across frames for one
// stream, plus the last decided label.
//
// It is not safe for concurrent use; a stream owns exactly one.
// Extended runs of no-face frames do not decay the state toward Neutral.
type Smoother struct {
	decay      float64
	seeded     bool
	state      Scores
	label      Label
	confidence float64
	updates    int
	skipped    int
}

// NewSmoother creates a Smoother with the given decay β in [0,1).
func NewSmoother(decay float64) (*Smoother, error) {
	if decay < 0 || decay >= 1 {
		return nil, fmt.Errorf("%w: decay %.3f not in [0,1)", ErrBadParameter, decay)
	}
	return &Smoother{decay: decay, label: Neutral}, nil
}

// Blend returns decay*prev + (1-decay)*p.
func Blend(prev, p Scores, decay float64) Scores {
	var out Scores
	for i := range out {
		out[i] = decay*prev[i] + (1-decay)*p[i]
	}
	return out
}

// Update folds one frame's fused probabilities into the state, merges Fear
// into Surprise, and decides the label. The first update seeds the state
// with p directly.
func (s *Smoother) Update(p Scores) (Label, float64, Scores) {
	if !s.seeded {
		s.state = p
		s.seeded = true
	} else {
		s.state = Blend(s.state, p, s.decay)
	}
	MergeFearIntoSurprise(&s.state)

	s.label, s.confidence = Decide(s.state)
	s.updates++
	return s.label, s.confidence, s.state
}

// Skip records a frame without a face. The state is left exactly as is.
func (s *Smoother) Skip() {
	s.skipped++
}

// State returns a copy of the smoothed vector.
func (s *Smoother) State() Scores {
	return s.state
}

// Seeded reports whether any face frame has been seen.
func (s *Smoother) Seeded() bool {
	return s.seeded
}

// Last returns the most recently decided label and confidence.
func (s *Smoother) Last() (Label, float64) {
	return s.label, s.confidence
}

// Updates returns how many face frames have been folded in.
func (s *Smoother) Updates() int {
	return s.updates
}

// Skipped returns how many no-face frames were seen.
func (s *Smoother) Skipped() int {
	return s.skipped
}

// Decay returns β.
func (s *Smoother) Decay() float64 {
	return s.decay
}
