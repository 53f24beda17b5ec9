package stream

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Display shows annotated frames and reports when the user asks to quit.
type Display interface {
	Show(img gocv.Mat) (quit bool)
	Close() error
}

// Window is an OpenCV HighGUI window. 'q' quits.
type Window struct {
	w *gocv.Window
}

// NewWindow opens a named window.
func NewWindow(name string) *Window {
	return &Window{w: gocv.NewWindow(name)}
}

// Show draws the frame and polls the keyboard for one millisecond.
func (w *Window) Show(img gocv.Mat) bool {
	w.w.IMShow(img)
	return w.w.WaitKey(1)&0xff == 'q'
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.w.Close()
}

var (
	labelColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	fpsColor   = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	boxColor   = color.RGBA{R: 255, G: 128, B: 0, A: 0}
)

// overlayText is the label line of the debug overlay.
func overlayText(label string, confidence float64, face bool) string {
	if !face {
		return label
	}
	return fmt.Sprintf("%s %.1f%%", label, confidence*100)
}

// drawOverlay annotates img in place with the face box, label and FPS.
func drawOverlay(img *gocv.Mat, face image.Rectangle, text string, fps float64) {
	if !face.Empty() {
		gocv.Rectangle(img, face, boxColor, 2)
	}
	gocv.PutText(img, text, image.Pt(20, 80), gocv.FontHersheySimplex, 1, labelColor, 2)
	gocv.PutText(img, fmt.Sprintf("FPS: %.1f", fps), image.Pt(20, 40), gocv.FontHersheySimplex, 1, fpsColor, 2)
}

// smoothFPS folds one frame interval into the running estimate.
func smoothFPS(prev, dtSeconds float64) float64 {
	if dtSeconds <= 0 {
		return prev
	}
	return 0.9*prev + 0.1*(1.0/dtSeconds)
}
