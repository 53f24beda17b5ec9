package classifier

import (
	"fmt"
	"os"
	"sync"

	"github.com/teslashibe/go-moodpet/pkg/emotion"
	"github.com/teslashibe/go-moodpet/pkg/extract"
	"gocv.io/x/gocv"
)

// DNN runs the model through OpenCV's dnn module.
type DNN struct {
	net    gocv.Net
	config Config
	mu     sync.Mutex
}

// NewDNN loads an ONNX model with gocv.
func NewDNN(cfg Config) (*DNN, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, cfg.ModelPath, err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: opencv could not read %s", ErrModelLoad, cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &DNN{net: net, config: cfg}, nil
}

// Classify runs one forward pass for both heads.
func (d *DNN) Classify(full, mouth extract.Tensor) (emotion.Logits, emotion.Logits, error) {
	var zero emotion.Logits
	if err := checkTensor(full, d.config.InputSize); err != nil {
		return zero, zero, err
	}
	if err := checkTensor(mouth, d.config.InputSize); err != nil {
		return zero, zero, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(full.Blob, d.config.InputFull)
	d.net.SetInput(mouth.Blob, d.config.InputMouth)
	outs := d.net.ForwardLayers([]string{d.config.OutputFull, d.config.OutputMouth})
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()
	if len(outs) != 2 {
		return zero, zero, fmt.Errorf("%w: %d outputs", ErrBadOutput, len(outs))
	}

	fl, err := logitsFromMat(&outs[0])
	if err != nil {
		return zero, zero, fmt.Errorf("full head: %w", err)
	}
	m, err := logitsFromMat(&outs[1])
	if err != nil {
		return zero, zero, fmt.Errorf("mouth head: %w", err)
	}
	return fl, m, nil
}

// Close releases the network.
func (d *DNN) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func logitsFromMat(m *gocv.Mat) (emotion.Logits, error) {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return emotion.Logits{}, err
	}
	return toLogits(data)
}
