package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// HaarDetector is the classic OpenCV Haar cascade.
type HaarDetector struct {
	cascade   gocv.CascadeClassifier
	scale     float64
	neighbors int
	mu        sync.Mutex
}

// NewHaar loads a Haar cascade XML file.
func NewHaar(cfg Config) (*HaarDetector, error) {
	if _, err := os.Stat(cfg.HaarCascadePath); err != nil {
		return nil, fmt.Errorf("haar cascade not found: %s: %w", cfg.HaarCascadePath, err)
	}

	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cfg.HaarCascadePath) {
		cascade.Close()
		return nil, fmt.Errorf("failed to load haar cascade from %s", cfg.HaarCascadePath)
	}

	scale, neighbors := cfg.HaarScaleFactor, cfg.HaarMinNeighbors
	if scale <= 1 {
		scale = DefaultConfig().HaarScaleFactor
	}
	if neighbors <= 0 {
		neighbors = DefaultConfig().HaarMinNeighbors
	}

	return &HaarDetector{cascade: cascade, scale: scale, neighbors: neighbors}, nil
}

// Detect runs the cascade on a grayscale copy of the frame.
func (d *HaarDetector) Detect(frame gocv.Mat) ([]Box, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	d.mu.Lock()
	// minNeighbors 3 (the gocv default) fires on textured backgrounds.
	rects := d.cascade.DetectMultiScaleWithParams(gray, d.scale, d.neighbors, 0, image.Pt(0, 0), image.Pt(0, 0))
	d.mu.Unlock()

	boxes := make([]Box, 0, len(rects))
	for _, r := range rects {
		// Haar gives no score.
		boxes = append(boxes, Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy(), Confidence: 1})
	}
	return boxes, nil
}

// Close releases the cascade.
func (d *HaarDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cascade.Close()
	return nil
}
