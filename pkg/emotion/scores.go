package emotion

import "math"

// Scores is a probability per class, indexed by Label.
// A valid vector sums to 1 with every entry in [0,1].
type Scores [NumClasses]float64

// Logits are the raw, unnormalized outputs of one classifier head.
type Logits [NumClasses]float64

// DefaultMouthWeight is the α applied to the mouth head before softmax.
const DefaultMouthWeight = 0.5

// Sum returns the total probability mass.
func (s Scores) Sum() float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

// Valid reports whether s is a probability vector within tol.
func (s Scores) Valid(tol float64) bool {
	for _, v := range s {
		if v < -tol || v > 1+tol || math.IsNaN(v) {
			return false
		}
	}
	return math.Abs(s.Sum()-1) <= tol
}

// Finite reports whether every logit is a finite number.
func (l Logits) Finite() bool {
	for _, v := range l {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Get returns the probability of one class.
func (s Scores) Get(l Label) float64 {
	return s[l]
}

// Distance is the Euclidean distance between two vectors.
func (s Scores) Distance(o Scores) float64 {
	var sq float64
	for i := range s {
		d := s[i] - o[i]
		sq += d * d
	}
	return math.Sqrt(sq)
}

// Softmax converts logits to probabilities.
// The max logit is subtracted first so large inputs cannot overflow.
func Softmax(l Logits) Scores {
	maxLogit := l[0]
	for _, v := range l[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var out Scores
	var total float64
	for i, v := range l {
		e := math.Exp(v - maxLogit)
		out[i] = e
		total += e
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// Fuse combines the two classifier heads: softmax(full + alpha*mouth).
func Fuse(full, mouth Logits, alpha float64) Scores {
	var combined Logits
	for i := range combined {
		combined[i] = full[i] + alpha*mouth[i]
	}
	return Softmax(combined)
}

// MergeFearIntoSurprise moves Fear's mass into Surprise and zeroes Fear.
// The two are rendered identically downstream. A second application is a
// no-op on Surprise because Fear is already zero.
func MergeFearIntoSurprise(s *Scores) {
	s[Surprise] += s[Fear]
	s[Fear] = 0
}

// Decide returns the argmax class and its probability.
// Ties go to the lowest class index.
func Decide(s Scores) (Label, float64) {
	best := 0
	for i := 1; i < NumClasses; i++ {
		if s[i] > s[best] {
			best = i
		}
	}
	return Label(best), s[best]
}
