// Package extract cuts the face and mouth regions out of a frame and turns
// them into normalized channel-first tensors for the classifier.
package extract

import (
	"image"

	"github.com/teslashibe/go-moodpet/pkg/detection"
)

const (
	// PadFraction of the larger box side is added on every side.
	PadFraction = 0.15

	// MouthTop is where the mouth crop starts, as a fraction of crop height.
	MouthTop = 0.55
)

// PadBox grows the box by PadFraction of its larger side and clamps it to
// the frame. The result is empty if nothing of the box lies in the frame.
func PadBox(box detection.Box, frameW, frameH int) image.Rectangle {
	pad := int(PadFraction * float64(max(box.W, box.H)))

	r := image.Rect(box.X-pad, box.Y-pad, box.X+box.W+pad, box.Y+box.H+pad)
	r = r.Intersect(image.Rect(0, 0, frameW, frameH))
	if r.Empty() {
		return image.Rectangle{}
	}
	return r
}

// MouthRegion returns the lower part of a padded face crop, from
// top + int(0.55*h) to the bottom. It falls back to the whole crop when
// that slice is empty.
func MouthRegion(face image.Rectangle) image.Rectangle {
	top := face.Min.Y + int(MouthTop*float64(face.Dy()))
	mouth := image.Rect(face.Min.X, top, face.Max.X, face.Max.Y)
	if mouth.Empty() {
		return face
	}
	return mouth
}
