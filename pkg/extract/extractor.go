package extract

import (
	"errors"
	"fmt"
	"image"

	"github.com/teslashibe/go-moodpet/pkg/detection"
	"gocv.io/x/gocv"
)

// DefaultInputSize is the classifier's square input side.
const DefaultInputSize = 224

// ErrEmptyCrop means the padded face box had no pixels inside the frame.
var ErrEmptyCrop = errors.New("extract: empty crop")

// Regions holds both classifier inputs for one face. Close releases the
// tensors.
type Regions struct {
	Full  Tensor
	Mouth Tensor

	FaceRect  image.Rectangle
	MouthRect image.Rectangle
}

// Close releases both tensors.
func (r Regions) Close() {
	r.Full.Close()
	r.Mouth.Close()
}

// Extractor produces classifier tensors from a frame and a face box.
type Extractor struct {
	size int
}

// New creates an Extractor for a square input size. Zero means 224.
func New(size int) *Extractor {
	if size <= 0 {
		size = DefaultInputSize
	}
	return &Extractor{size: size}
}

// Size returns the tensor side length.
func (e *Extractor) Size() int {
	return e.size
}

// Extract crops the padded face and its mouth region and normalizes both.
func (e *Extractor) Extract(frame gocv.Mat, box detection.Box) (Regions, error) {
	face := PadBox(box, frame.Cols(), frame.Rows())
	if face.Empty() {
		return Regions{}, ErrEmptyCrop
	}
	mouth := MouthRegion(face)

	full, err := e.tensor(frame, face)
	if err != nil {
		return Regions{}, fmt.Errorf("face crop: %w", err)
	}
	m, err := e.tensor(frame, mouth)
	if err != nil {
		full.Close()
		return Regions{}, fmt.Errorf("mouth crop: %w", err)
	}

	return Regions{Full: full, Mouth: m, FaceRect: face, MouthRect: mouth}, nil
}

func (e *Extractor) tensor(frame gocv.Mat, r image.Rectangle) (Tensor, error) {
	crop := frame.Region(r)
	defer crop.Close()
	return Normalize(crop, e.size)
}
