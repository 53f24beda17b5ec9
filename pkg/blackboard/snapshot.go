package blackboard

import (
	"fmt"
)

// Snapshot is a copy of the scalar keys. It is read field by field and is
// not an atomic view of the board.
type Snapshot struct {
	PetType         string  `json:"pet_type"`
	Scale           float64 `json:"scale"`
	X               int     `json:"x"`
	Y               int     `json:"y"`
	Running         bool    `json:"running"`
	Mode            string  `json:"mode"`
	DetectedEmotion string  `json:"detected_emotion"`
	HasFrame        bool    `json:"has_frame"`
}

// Snapshot reads every scalar key.
func (b *Board) Snapshot() Snapshot {
	return Snapshot{
		PetType:         b.PetType(),
		Scale:           b.Scale(),
		X:               b.X(),
		Y:               b.Y(),
		Running:         b.Running(),
		Mode:            b.Mode(),
		DetectedEmotion: b.DetectedEmotion(),
		HasFrame:        b.Frame() != nil,
	}
}

// Get reads one key in the loose form the original dictionary offered.
// The frame key returns *Frame.
func (b *Board) Get(key string) (any, error) {
	switch key {
	case KeyPetType:
		return b.PetType(), nil
	case KeyScale:
		return b.Scale(), nil
	case KeyX:
		return b.X(), nil
	case KeyY:
		return b.Y(), nil
	case KeyRunning:
		return b.Running(), nil
	case KeyMode:
		return b.Mode(), nil
	case KeyDetectedEmotion:
		return b.DetectedEmotion(), nil
	case KeyFrame:
		return b.Frame(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Set writes one key from a loosely typed value, such as decoded JSON.
func (b *Board) Set(key string, value any) error {
	switch key {
	case KeyPetType, KeyMode, KeyDetectedEmotion:
		v, ok := value.(string)
		if !ok {
			return typeError(key, "string", value)
		}
		switch key {
		case KeyPetType:
			b.SetPetType(v)
		case KeyMode:
			b.SetMode(v)
		default:
			b.SetDetectedEmotion(v)
		}
	case KeyScale:
		v, ok := toFloat(value)
		if !ok {
			return typeError(key, "number", value)
		}
		b.SetScale(v)
	case KeyX, KeyY:
		v, ok := toInt(value)
		if !ok {
			return typeError(key, "integer", value)
		}
		if key == KeyX {
			b.SetX(v)
		} else {
			b.SetY(v)
		}
	case KeyRunning:
		v, ok := value.(bool)
		if !ok {
			return typeError(key, "bool", value)
		}
		b.SetRunning(v)
	case KeyFrame:
		v, ok := value.(*Frame)
		if !ok {
			return typeError(key, "*Frame", value)
		}
		b.SetFrame(v)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return nil
}

func typeError(key, want string, got any) error {
	return fmt.Errorf("%w: %s wants %s, got %T", ErrWrongType, key, want, got)
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != float64(int(val)) {
			return 0, false
		}
		return int(val), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}
