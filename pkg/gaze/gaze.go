// Package gaze defines the shared data model for point-of-gaze estimation:
// gaze ratios, screen points, estimates and the detector collaborator.
package gaze

import (
	"fmt"
	"math"
)

// Ratio is one frame of normalized gaze ratios from the detector.
// H runs from 0.0 (extreme right) to 1.0 (extreme left), V from 0.0 (top)
// to 1.0 (bottom).
type Ratio struct {
	H float64 `json:"hr"`
	V float64 `json:"vr"`
}

// Point is a screen position in pixels, origin at the top-left corner.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pt is shorthand for Point{x, y}.
func Pt(x, y int) Point {
	return Point{X: x, Y: y}
}

// Distance returns the Euclidean distance between p and q in pixels.
func (p Point) Distance(q Point) float64 {
	dx := float64(q.X - p.X)
	dy := float64(q.Y - p.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Sub returns the vector p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Screen is the display size in pixels.
type Screen struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the screen center (integer division, as calibration
// points are laid out).
func (s Screen) Center() Point {
	return Point{X: s.Width / 2, Y: s.Height / 2}
}

// Diagonal returns the screen diagonal in pixels.
func (s Screen) Diagonal() float64 {
	return math.Hypot(float64(s.Width), float64(s.Height))
}

// Validate reports ErrInvalidScreen for non-positive dimensions.
func (s Screen) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidScreen, s.Width, s.Height)
	}
	return nil
}

// Estimate is the EPOG produced for one frame.
// Located is false when the detector did not find both pupils; Raw and
// Stable are meaningless in that case.
type Estimate struct {
	Raw        Point `json:"raw"`
	Stable     Point `json:"stable"`
	Located    bool  `json:"located"`
	Stabilized bool  `json:"stabilized"`
}

// Point returns the estimate a consumer should act on: the stabilized
// point when stabilization ran, the raw point otherwise.
func (e Estimate) Point() Point {
	if e.Stabilized {
		return e.Stable
	}
	return e.Raw
}

// Detector is the per-frame output of the external landmark/iris detector.
type Detector interface {
	// PupilsLocated reports whether both pupils were found this frame.
	PupilsLocated() bool

	// HorizontalRatio returns the horizontal gaze ratio, ok=false if absent.
	HorizontalRatio() (float64, bool)

	// VerticalRatio returns the vertical gaze ratio, ok=false if absent.
	VerticalRatio() (float64, bool)

	// MeasureIrisDiameter returns the apparent iris diameter in pixels.
	// Only called at the calibration center point and while the user is
	// looking straight ahead.
	MeasureIrisDiameter() float64
}

// ReadRatio returns the frame's ratio pair. ok is false unless the pupils
// are located and both ratios are present.
func ReadRatio(d Detector) (Ratio, bool) {
	if d == nil || !d.PupilsLocated() {
		return Ratio{}, false
	}
	h, okH := d.HorizontalRatio()
	v, okV := d.VerticalRatio()
	if !okH || !okV {
		return Ratio{}, false
	}
	return Ratio{H: h, V: v}, true
}

// ScreenSizer provides the display size. It is queried once at startup.
type ScreenSizer interface {
	ScreenSize() (Screen, error)
}

// FixedScreen is a ScreenSizer that always returns itself.
type FixedScreen Screen

// ScreenSize implements ScreenSizer.
func (f FixedScreen) ScreenSize() (Screen, error) {
	s := Screen(f)
	return s, s.Validate()
}
