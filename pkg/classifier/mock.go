package classifier

import (
	"github.com/teslashibe/go-moodpet/pkg/emotion"
	"github.com/teslashibe/go-moodpet/pkg/extract"
)

// Mock is a DualHead for tests.
type Mock struct {
	ClassifyFunc func(full, mouth extract.Tensor) (emotion.Logits, emotion.Logits, error)
	Calls        int
	Closed       bool
}

// Classify calls ClassifyFunc, or returns zero logits.
func (m *Mock) Classify(full, mouth extract.Tensor) (emotion.Logits, emotion.Logits, error) {
	m.Calls++
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(full, mouth)
	}
	return emotion.Logits{}, emotion.Logits{}, nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.Closed = true
	return nil
}
