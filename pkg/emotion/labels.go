// Package emotion turns raw classifier logits into a smoothed, decided
// facial emotion.
//
// The pipeline per face frame is Fuse -> Smoother.Update -> Decide. Frames
// without a face call Smoother.Skip and leave the smoothed vector untouched.
package emotion

import (
	"fmt"
	"strings"
)

// NumClasses is the size of every score vector.
const NumClasses = 7

// Label identifies one of the seven facial expression classes.
// The numeric value is the index into a Scores vector.
type Label int

const (
	Angry Label = iota
	Disgust
	Fear
	Happy
	Neutral
	Sad
	Surprise
)

// NoFace is published in place of a label when a frame has no face.
const NoFace = "No face"

var labelNames = [NumClasses]string{
	"Angry",
	"Disgust",
	"Fear",
	"Happy",
	"Neutral",
	"Sad",
	"Surprise",
}

// Labels returns every label in class-index order.
func Labels() []Label {
	out := make([]Label, NumClasses)
	for i := range out {
		out[i] = Label(i)
	}
	return out
}

// String returns the class name, e.g. "Happy".
func (l Label) String() string {
	if l < 0 || int(l) >= NumClasses {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return labelNames[l]
}

// Valid reports whether l is one of the seven classes.
func (l Label) Valid() bool {
	return l >= 0 && int(l) < NumClasses
}

// ParseLabel is the inverse of Label.String. Matching is case-insensitive.
func ParseLabel(s string) (Label, error) {
	for i, name := range labelNames {
		if strings.EqualFold(name, s) {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, s)
}
