package detection

import (
	"errors"
	"testing"

	"github.com/teslashibe/go-moodpet/internal/log"
	"gocv.io/x/gocv"
)

func init() {
	log.Discard()
}

func factoriesWith(calls map[string]int, fail map[string]bool) map[string]Factory {
	mk := func(name string) Factory {
		return func(Config) (Detector, error) {
			calls[name]++
			if fail[name] {
				return nil, errors.New(name + " unavailable")
			}
			return &Mock{}, nil
		}
	}
	return map[string]Factory{
		BackendYuNet: mk(BackendYuNet),
		BackendPigo:  mk(BackendPigo),
		BackendHaar:  mk(BackendHaar),
	}
}

func TestNewLocator_Primary(t *testing.T) {
	calls := map[string]int{}
	l, err := NewLocatorWith(DefaultConfig(), factoriesWith(calls, nil))
	if err != nil {
		t.Fatalf("NewLocatorWith: %v", err)
	}
	if l.Backend() != BackendYuNet || l.FellBack() {
		t.Errorf("backend = %s fellBack = %v, want yunet/false", l.Backend(), l.FellBack())
	}
	if calls[BackendPigo] != 0 {
		t.Error("fallback should not be constructed when the primary works")
	}
}

func TestNewLocator_Fallback(t *testing.T) {
	tests := []struct {
		fallback string
	}{
		{BackendPigo},
		{BackendHaar},
	}

	for _, tc := range tests {
		t.Run(tc.fallback, func(t *testing.T) {
			calls := map[string]int{}
			cfg := DefaultConfig()
			cfg.Fallback = tc.fallback

			l, err := NewLocatorWith(cfg, factoriesWith(calls, map[string]bool{BackendYuNet: true}))
			if err != nil {
				t.Fatalf("NewLocatorWith: %v", err)
			}
			if l.Backend() != tc.fallback || !l.FellBack() {
				t.Errorf("backend = %s fellBack = %v", l.Backend(), l.FellBack())
			}
			if calls[BackendYuNet] != 1 || calls[tc.fallback] != 1 {
				t.Errorf("each backend should be tried exactly once: %v", calls)
			}
		})
	}
}

func TestNewLocator_NoDetector(t *testing.T) {
	tests := []struct {
		name     string
		fallback string
		fail     map[string]bool
	}{
		{"fallback disabled", BackendNone, map[string]bool{BackendYuNet: true}},
		{"both fail", BackendPigo, map[string]bool{BackendYuNet: true, BackendPigo: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Fallback = tc.fallback
			_, err := NewLocatorWith(cfg, factoriesWith(map[string]int{}, tc.fail))
			if !errors.Is(err, ErrNoDetector) {
				t.Errorf("got %v, want ErrNoDetector", err)
			}
		})
	}
}

func TestLocator_DelegatesToBackend(t *testing.T) {
	m := &Mock{
		DetectFunc: func(gocv.Mat) ([]Box, error) {
			return []Box{{W: 5, H: 5}, {X: 9, W: 30, H: 30}}, nil
		},
	}
	l := &Locator{detector: m, backend: "mock"}

	frame := gocv.NewMat()
	defer frame.Close()

	boxes, err := l.Detect(frame)
	if err != nil || len(boxes) != 2 {
		t.Fatalf("Detect: boxes=%v err=%v", boxes, err)
	}
	if box, _ := SelectLargest(boxes); box.X != 9 {
		t.Errorf("expected the larger box, got %+v", box)
	}

	if err := l.Close(); err != nil || !m.Closed {
		t.Errorf("Close: err=%v closed=%v", err, m.Closed)
	}
}
