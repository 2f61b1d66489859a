// Package render turns tracker updates into drawable scenes. The scene is
// backend-neutral; package cvwindow draws it with OpenCV.
package render

import (
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/epog"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Color is an 8-bit RGB color.
type Color struct {
	R, G, B uint8
}

var (
	Background = Color{50, 50, 50}
	Red        = Color{255, 0, 0}
	LightGrey  = Color{200, 200, 200}
	White      = Color{255, 255, 255}
)

// Circle is a filled disc.
type Circle struct {
	Center gaze.Point
	Radius int
	Color  Color
}

// Text is a line of text centered on Center.
type Text struct {
	Center  gaze.Point
	Content string
	Color   Color
}

// Scene is everything to draw for one frame.
type Scene struct {
	Screen     gaze.Screen
	Background Color
	Circles    []Circle
	Texts      []Text

	// Minimize asks the display to get out of the way: calibration and
	// testing are over and only tracking remains.
	Minimize bool
}

// Style sets marker sizes and wording.
type Style struct {
	MarkerRadius int
	Instruction  string
}

// DefaultStyle returns 20 px markers and the standard instruction.
func DefaultStyle() Style {
	return Style{
		MarkerRadius: calibration.DefaultMarkerRadius,
		Instruction:  "Please, fixate on the red dots",
	}
}

// Compose builds the scene for u.
func Compose(u epog.Update, screen gaze.Screen, style Style) Scene {
	s := Scene{Screen: screen, Background: Background}

	switch {
	case u.Calibration != nil:
		f := u.Calibration
		if f.Instruction {
			s.Texts = append(s.Texts, Text{Center: screen.Center(), Content: style.Instruction, Color: White})
		}
		if f.Point != nil {
			s.Circles = append(s.Circles, Circle{Center: f.Point.Pos, Radius: style.MarkerRadius, Color: Red})
		}

	case u.Test != nil:
		if u.Test.Phase == calibration.PhaseTesting {
			s.Circles = append(s.Circles, Circle{Center: u.Test.Target, Radius: style.MarkerRadius, Color: Red})
		}
		if u.Estimate.Located {
			r := style.MarkerRadius / 4
			if r < 1 {
				r = 1
			}
			s.Circles = append(s.Circles, Circle{Center: u.Estimate.Point(), Radius: r, Color: LightGrey})
		}

	case u.Mode == epog.ModeTracking:
		s.Minimize = true
	}
	return s
}

// Display shows scenes. Implementations are driven from the frame loop.
type Display interface {
	Render(s Scene) error
	// Quit reports whether the user asked to stop.
	Quit() bool
	Close() error
}

// Headless is a Display that draws nothing.
type Headless struct{}

func (Headless) Render(Scene) error { return nil }
func (Headless) Quit() bool { return false }
func (Headless) Close() error { return nil }
