package classifier

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/teslashibe/go-moodpet/pkg/emotion"
	"github.com/teslashibe/go-moodpet/pkg/extract"
)

var ortInit sync.Mutex

// ONNXRuntime runs the model with onnxruntime. Input and output tensors are
// allocated once and reused for every frame.
type ONNXRuntime struct {
	session  *ort.AdvancedSession
	inFull   *ort.Tensor[float32]
	inMouth  *ort.Tensor[float32]
	outFull  *ort.Tensor[float32]
	outMouth *ort.Tensor[float32]
	config   Config
	mu       sync.Mutex
}

// NewONNXRuntime initializes the runtime (once per process) and opens a session.
func NewONNXRuntime(cfg Config) (*ONNXRuntime, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, cfg.ModelPath, err)
	}

	if err := initRuntime(cfg.SharedLibrary); err != nil {
		return nil, fmt.Errorf("%w: onnxruntime init: %v", ErrModelLoad, err)
	}

	r := &ONNXRuntime{config: cfg}
	ok := false
	defer func() {
		if !ok {
			r.destroy()
		}
	}()

	inShape := ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize))
	outShape := ort.NewShape(1, int64(emotion.NumClasses))

	var err error
	if r.inFull, err = ort.NewEmptyTensor[float32](inShape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if r.inMouth, err = ort.NewEmptyTensor[float32](inShape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if r.outFull, err = ort.NewEmptyTensor[float32](outShape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if r.outMouth, err = ort.NewEmptyTensor[float32](outShape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	r.session, err = ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputFull, cfg.InputMouth},
		[]string{cfg.OutputFull, cfg.OutputMouth},
		[]ort.Value{r.inFull, r.inMouth},
		[]ort.Value{r.outFull, r.outMouth},
		nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	ok = true
	return r, nil
}

func initRuntime(lib string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	return ort.InitializeEnvironment()
}

// Classify copies the tensors into the session inputs and runs it.
func (r *ONNXRuntime) Classify(full, mouth extract.Tensor) (emotion.Logits, emotion.Logits, error) {
	var zero emotion.Logits
	if err := checkTensor(full, r.config.InputSize); err != nil {
		return zero, zero, err
	}
	if err := checkTensor(mouth, r.config.InputSize); err != nil {
		return zero, zero, err
	}

	fullVals, err := full.Values()
	if err != nil {
		return zero, zero, err
	}
	mouthVals, err := mouth.Values()
	if err != nil {
		return zero, zero, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copy(r.inFull.GetData(), fullVals)
	copy(r.inMouth.GetData(), mouthVals)

	if err := r.session.Run(); err != nil {
		return zero, zero, fmt.Errorf("onnxruntime run: %w", err)
	}

	fl, err := toLogits(r.outFull.GetData())
	if err != nil {
		return zero, zero, fmt.Errorf("full head: %w", err)
	}
	m, err := toLogits(r.outMouth.GetData())
	if err != nil {
		return zero, zero, fmt.Errorf("mouth head: %w", err)
	}
	return fl, m, nil
}

// Close destroys the session and its tensors. The runtime environment stays
// initialized for the process.
func (r *ONNXRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroy()
	return nil
}

func (r *ONNXRuntime) destroy() {
	if r.session != nil {
		r.session.Destroy()
		r.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{r.inFull, r.inMouth, r.outFull, r.outMouth} {
		if t != nil {
			t.Destroy()
		}
	}
	r.inFull, r.inMouth, r.outFull, r.outMouth = nil, nil, nil, nil
}
