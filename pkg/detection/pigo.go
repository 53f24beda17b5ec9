package detection

import (
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"
	"gocv.io/x/gocv"
)

// PigoDetector is a pure-Go pixel intensity comparison cascade.
// It needs no OpenCV model files, only the facefinder cascade.
type PigoDetector struct {
	classifier *pigo.Pigo
	config     Config
}

// NewPigo reads and unpacks the facefinder cascade.
func NewPigo(cfg Config) (*PigoDetector, error) {
	data, err := os.ReadFile(cfg.PigoCascadePath)
	if err != nil {
		return nil, fmt.Errorf("read pigo cascade: %w", err)
	}

	p := pigo.NewPigo()
	classifier, err := p.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack pigo cascade: %w", err)
	}

	return &PigoDetector{classifier: classifier, config: cfg}, nil
}

// Detect converts the frame to grayscale and runs the cascade.
func (d *PigoDetector) Detect(frame gocv.Mat) ([]Box, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	rows, cols := gray.Rows(), gray.Cols()
	params := pigo.CascadeParams{
		MinSize:     d.config.PigoMinSize,
		MaxSize:     d.config.PigoMaxSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: gray.ToBytes(),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, 0.2)

	return pigoBoxes(dets, d.config.PigoMinQuality, cols, rows), nil
}

// Close is a no-op; pigo holds only Go memory.
func (d *PigoDetector) Close() error {
	return nil
}

// pigoBoxes converts centre/scale detections to clamped top-left boxes and
// drops those below minQ.
func pigoBoxes(dets []pigo.Detection, minQ float64, cols, rows int) []Box {
	boxes := make([]Box, 0, len(dets))
	for _, det := range dets {
		if float64(det.Q) < minQ {
			continue
		}
		half := det.Scale / 2
		x0, y0 := max(det.Col-half, 0), max(det.Row-half, 0)
		x1, y1 := min(det.Col+half, cols), min(det.Row+half, rows)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		boxes = append(boxes, Box{
			X:          x0,
			Y:          y0,
			W:          x1 - x0,
			H:          y1 - y0,
			Confidence: float64(det.Q),
		})
	}
	return boxes
}
