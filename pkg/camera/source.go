package camera

import (
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrCameraUnavailable is returned when the capture device cannot be opened.
	ErrCameraUnavailable = errors.New("camera: unavailable")

	// ErrReadFailed is returned when a frame cannot be read.
	ErrReadFailed = errors.New("camera: read failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("camera: closed")
)

// Frame is one captured image. It owns its Mat; call Close when done.
type Frame struct {
	Mat        gocv.Mat
	Seq        uint64
	CapturedAt time.Time
}

// Close releases the pixel buffer.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Size returns the frame dimensions.
func (f *Frame) Size() image.Point {
	return image.Pt(f.Mat.Cols(), f.Mat.Rows())
}

// Source produces frames.
type Source interface {
	// Read fills dst with the next frame. io.EOF means the source is
	// exhausted and the stream should end normally.
	Read(dst *gocv.Mat) error
	Close() error
}

// Reconfigurable is a Source whose capture settings can change while open.
type Reconfigurable interface {
	Source
	Apply(cfg Config) error
	Negotiated() image.Point
}

var _ Reconfigurable = (*Webcam)(nil)

// Webcam reads frames from an OpenCV capture device.
type Webcam struct {
	capture *gocv.VideoCapture
	config  Config
	mu      sync.Mutex
	closed  bool
}

// Open opens the capture device and requests the configured resolution.
// The driver may negotiate something else; Negotiated reports what it chose.
func Open(cfg Config) (*Webcam, error) {
	var device interface{} = cfg.Device
	if id, err := strconv.Atoi(cfg.Device); err == nil {
		device = id
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCameraUnavailable, cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s not opened", ErrCameraUnavailable, cfg.Device)
	}

	w := &Webcam{capture: capture, config: cfg}
	w.apply(cfg)
	return w, nil
}

func (w *Webcam) apply(cfg Config) {
	w.capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	w.capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	w.capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	w.config = cfg
}

// Apply pushes new capture settings to the open device. A running stream
// forwards Manager changes here.
func (w *Webcam) Apply(cfg Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if cfg.Device != w.config.Device {
		return fmt.Errorf("camera: device change needs a stream restart")
	}
	w.apply(cfg)
	return nil
}

// Negotiated returns the resolution the driver actually delivers.
func (w *Webcam) Negotiated() image.Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	return image.Pt(
		int(w.capture.Get(gocv.VideoCaptureFrameWidth)),
		int(w.capture.Get(gocv.VideoCaptureFrameHeight)),
	)
}

// Read grabs the next frame.
func (w *Webcam) Read(dst *gocv.Mat) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if ok := w.capture.Read(dst); !ok || dst.Empty() {
		return ErrReadFailed
	}
	if w.config.Mirror {
		gocv.Flip(*dst, dst, 1)
	}
	return nil
}

// Close releases the device.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.capture.Close()
}

// Still is a Source that repeats one image. It stands in for a webcam in
// demos and tests. Limit 0 means forever.
type Still struct {
	img   gocv.Mat
	limit int
	reads int
	mu    sync.Mutex
}

// NewStill copies img; the caller keeps ownership of the original.
func NewStill(img gocv.Mat, limit int) *Still {
	return &Still{img: img.Clone(), limit: limit}
}

// LoadStill reads an image file.
func LoadStill(path string, limit int) (*Still, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("%w: cannot read image %s", ErrCameraUnavailable, path)
	}
	return &Still{img: img, limit: limit}, nil
}

// Read copies the image into dst until the limit is reached.
func (s *Still) Read(dst *gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && s.reads >= s.limit {
		return io.EOF
	}
	s.reads++
	s.img.CopyTo(dst)
	return nil
}

// Reads returns how many frames were served.
func (s *Still) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Close releases the image.
func (s *Still) Close() error {
	return s.img.Close()
}
