// Package blackboard implements the shared channel between the inference
// stream, the control panel and the pet renderer.
//
// A Board is a last-write-wins key/value blackboard. Every field is its own
// atomic value, so single-field reads and writes are always consistent and
// lock free. There is deliberately no lock spanning several fields: a reader
// can observe x from one controller write and y from the next. Snapshot
// reads fields one at a time and inherits the same property.
package blackboard

import (
	"math"
	"sync/atomic"
	"time"
)

// Keys of the shared channel.
const (
	KeyPetType         = "pet_type"
	KeyScale           = "scale"
	KeyX               = "x"
	KeyY               = "y"
	KeyRunning         = "running"
	KeyMode            = "mode"
	KeyDetectedEmotion = "detected_emotion"
	KeyFrame           = "frame"
)

// Pet display modes.
const (
	ModeFace = "face"
	ModeDog  = "dog"
)

// Frame is an encoded camera image stored in the frame slot.
type Frame struct {
	JPEG       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Board is the shared blackboard. The zero value is not usable; call New.
type Board struct {
	petType         atomic.Pointer[string]
	scale           atomic.Uint64 // float64 bits
	x               atomic.Int64
	y               atomic.Int64
	running         atomic.Bool
	mode            atomic.Pointer[string]
	detectedEmotion atomic.Pointer[string]
	frame           atomic.Pointer[Frame]

	// writes counts every successful Set*, used by pollers to spot churn.
	writes atomic.Uint64
}

// Defaults are the values the control panel starts with.
type Defaults struct {
	PetType string
	Mode    string
	Scale   float64
	X       int
	Y       int
	Running bool
}

// DefaultValues returns the control panel defaults.
func DefaultValues() Defaults {
	return Defaults{
		PetType: "westie",
		Mode:    ModeFace,
		Scale:   1.1,
		X:       400,
		Y:       1000,
		Running: false,
	}
}

// New creates a Board populated with the given defaults.
func New(d Defaults) *Board {
	b := &Board{}
	b.SetPetType(d.PetType)
	b.SetMode(d.Mode)
	b.SetScale(d.Scale)
	b.SetX(d.X)
	b.SetY(d.Y)
	b.SetRunning(d.Running)
	b.SetDetectedEmotion("")
	b.writes.Store(0)
	return b
}

func (b *Board) touch() {
	b.writes.Add(1)
}

// PetType returns the selected pet.
func (b *Board) PetType() string {
	return *b.petType.Load()
}

// SetPetType selects the pet.
func (b *Board) SetPetType(v string) {
	b.petType.Store(&v)
	b.touch()
}

// Scale returns the display scale.
func (b *Board) Scale() float64 {
	return math.Float64frombits(b.scale.Load())
}

// SetScale sets the display scale.
func (b *Board) SetScale(v float64) {
	b.scale.Store(math.Float64bits(v))
	b.touch()
}

// X returns the horizontal screen position.
func (b *Board) X() int {
	return int(b.x.Load())
}

// SetX sets the horizontal screen position.
func (b *Board) SetX(v int) {
	b.x.Store(int64(v))
	b.touch()
}

// Y returns the vertical screen position.
func (b *Board) Y() int {
	return int(b.y.Load())
}

// SetY sets the vertical screen position.
func (b *Board) SetY(v int) {
	b.y.Store(int64(v))
	b.touch()
}

// Running reports whether the stream should keep going.
func (b *Board) Running() bool {
	return b.running.Load()
}

// SetRunning sets the running flag.
func (b *Board) SetRunning(v bool) {
	b.running.Store(v)
	b.touch()
}

// Mode returns the pet display mode.
func (b *Board) Mode() string {
	return *b.mode.Load()
}

// SetMode sets the pet display mode.
func (b *Board) SetMode(v string) {
	b.mode.Store(&v)
	b.touch()
}

// DetectedEmotion returns the last published label, "No face", or "".
func (b *Board) DetectedEmotion() string {
	return *b.detectedEmotion.Load()
}

// SetDetectedEmotion publishes a label.
func (b *Board) SetDetectedEmotion(v string) {
	b.detectedEmotion.Store(&v)
	b.touch()
}

// Frame returns the last stored frame, or nil.
func (b *Board) Frame() *Frame {
	return b.frame.Load()
}

// SetFrame replaces the frame slot. The Frame must not be mutated afterwards.
func (b *Board) SetFrame(f *Frame) {
	b.frame.Store(f)
	b.touch()
}

// Writes returns the number of writes since New.
func (b *Board) Writes() uint64 {
	return b.writes.Load()
}
