package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	size     image.Point
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("yunet model not found: %s: %w", cfg.ModelPath, err)
	}

	size := image.Pt(cfg.InputWidth, cfg.InputHeight)
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		size,
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
		size:     size,
	}, nil
}

// Detect finds faces in a BGR frame.
func (d *YuNetDetector) Detect(frame gocv.Mat) ([]Box, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Input size must track the frame, but only touch it when it changes.
	if sz := image.Pt(frame.Cols(), frame.Rows()); sz != d.size {
		d.detector.SetInputSize(sz)
		d.size = sz
	}

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(frame, &faces)

	boxes := make([]Box, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		boxes = append(boxes, Box{
			X:          int(faces.GetFloatAt(r, 0)),
			Y:          int(faces.GetFloatAt(r, 1)),
			W:          int(faces.GetFloatAt(r, 2)),
			H:          int(faces.GetFloatAt(r, 3)),
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}

	return boxes, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
