// Package detection locates faces in camera frames.
package detection

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// Backend names.
const (
	BackendYuNet = "yunet"
	BackendPigo  = "pigo"
	BackendHaar  = "haar"
	BackendNone  = "none"
)

var (
	// ErrNoDetector means neither the primary nor the fallback could be built.
	ErrNoDetector = errors.New("detection: no face detector available")

	// ErrEmptyFrame is returned for frames with no pixels.
	ErrEmptyFrame = errors.New("detection: empty frame")
)

// Box is a face rectangle in frame pixels.
type Box struct {
	X, Y       int
	W, H       int
	Confidence float64
}

// Area returns W*H.
func (b Box) Area() int {
	return b.W * b.H
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Detector is the interface for face detection backends.
type Detector interface {
	// Detect returns every face found in a BGR frame. No faces is not an error.
	Detect(frame gocv.Mat) ([]Box, error)

	// Close releases resources
	Close() error
}

// SelectLargest picks the box with the largest area.
// Equal areas resolve to the first occurrence.
func SelectLargest(boxes []Box) (Box, bool) {
	if len(boxes) == 0 {
		return Box{}, false
	}

	best := 0
	for i := 1; i < len(boxes); i++ {
		if boxes[i].Area() > boxes[best].Area() {
			best = i
		}
	}
	return boxes[best], true
}
