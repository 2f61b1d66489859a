package calibration

import (
	"fmt"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// DefaultMarkerRadius is the calibration marker radius in pixels. It doubles
// as the screen margin so markers are never clipped by the screen edge.
const DefaultMarkerRadius = 20

// Grid describes the rows x cols layout of calibration points.
// Use odd dimensions so one point sits at the screen center, where the
// baseline iris size is measured.
type Grid struct {
	Rows   int `json:"rows"`
	Cols   int `json:"cols"`
	Margin int `json:"margin"` // Inset from each screen edge in pixels
}

// DefaultGrid returns the 3x3 grid.
func DefaultGrid() Grid {
	return Grid{Rows: 3, Cols: 3, Margin: DefaultMarkerRadius}
}

// Validate checks that the grid has points on every edge.
func (g Grid) Validate() error {
	if g.Rows < 2 || g.Cols < 2 {
		return fmt.Errorf("calibration: grid must be at least 2x2, got %dx%d", g.Rows, g.Cols)
	}
	if g.Margin < 0 {
		return fmt.Errorf("calibration: negative grid margin %d", g.Margin)
	}
	return nil
}

// GridPoint is one calibration point with its grid position.
type GridPoint struct {
	Row    int        `json:"row"`
	Col    int        `json:"col"`
	Pos    gaze.Point `json:"pos"`
	Center bool       `json:"center"` // Baseline iris size is sampled here
}

// Points lays the grid out row-major over the margin-inset screen.
// Exactly one point is flagged Center: the one nearest the screen center.
func (g Grid) Points(screen gaze.Screen) []GridPoint {
	stepH := (screen.Width - 2*g.Margin) / (g.Cols - 1)
	stepV := (screen.Height - 2*g.Margin) / (g.Rows - 1)

	points := make([]GridPoint, 0, g.Rows*g.Cols)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			points = append(points, GridPoint{
				Row: r,
				Col: c,
				Pos: gaze.Pt(c*stepH+g.Margin, r*stepV+g.Margin),
			})
		}
	}

	center := screen.Center()
	best := 0
	for i := range points {
		if points[i].Pos.Distance(center) < points[best].Pos.Distance(center) {
			best = i
		}
	}
	points[best].Center = true
	return points
}

// IsLeft reports whether p is in the leftmost column of g.
func (g Grid) IsLeft(p GridPoint) bool { return p.Col == 0 }

// IsRight reports whether p is in the rightmost column of g.
func (g Grid) IsRight(p GridPoint) bool { return p.Col == g.Cols-1 }

// IsTop reports whether p is in the top row of g.
func (g Grid) IsTop(p GridPoint) bool { return p.Row == 0 }

// IsBottom reports whether p is in the bottom row of g.
func (g Grid) IsBottom(p GridPoint) bool { return p.Row == g.Rows-1 }
