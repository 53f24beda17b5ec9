package detection

import "gocv.io/x/gocv"

// Mock is a Detector for tests.
type Mock struct {
	DetectFunc func(frame gocv.Mat) ([]Box, error)
	Closed     bool
}

// Detect calls DetectFunc, or reports no faces.
func (m *Mock) Detect(frame gocv.Mat) ([]Box, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(frame)
	}
	return nil, nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.Closed = true
	return nil
}
