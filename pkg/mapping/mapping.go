// Package mapping turns gaze ratios into screen pixels using a completed
// calibration, with head-distance compensation from the apparent iris size.
package mapping

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// DistFactor returns base/current. A non-positive or non-finite current
// size yields 1 so a bad measurement never distorts the estimate.
func DistFactor(base, current float64) float64 {
	if !(current > 0) || math.IsInf(current, 0) || !(base > 0) {
		return 1
	}
	return base / current
}

// Map converts a gaze ratio to a screen point. Ratios beyond the calibrated
// left/top extremes clamp to the screen edge instead of going negative.
func Map(r gaze.Ratio, calib calibration.Result, screen gaze.Screen, currentIris float64) (gaze.Point, error) {
	dh := calib.LeftmostHR - calib.RightmostHR
	dv := calib.BottomVR - calib.TopVR
	if dh == 0 || dv == 0 {
		return gaze.Point{}, fmt.Errorf("%w: zero ratio span (h=%.4f v=%.4f)",
			gaze.ErrDegenerateCalibration, dh, dv)
	}
	df := DistFactor(calib.BaseIrisSize, currentIris)

	x := math.Max(calib.LeftmostHR-r.H, 0) * float64(screen.Width) * df / dh
	y := math.Max(r.V-calib.TopVR, 0) * float64(screen.Height) * df / dv
	return gaze.Pt(int(math.Round(x)), int(math.Round(y))), nil
}

// Region is the central "looking straight ahead" area of the screen, given
// as half-extents relative to the screen size.
type Region struct {
	WidthMargin  float64 `json:"width_margin"`
	HeightMargin float64 `json:"height_margin"`
}

// DefaultRegion returns ±30% of the width and ±50% of the height.
func DefaultRegion() Region {
	return Region{WidthMargin: 0.3, HeightMargin: 0.5}
}

// Validate rejects negative margins.
func (r Region) Validate() error {
	if r.WidthMargin < 0 || r.HeightMargin < 0 {
		return fmt.Errorf("mapping: negative region margin %+v", r)
	}
	return nil
}

// Contains reports whether p lies strictly inside the region.
func (r Region) Contains(p gaze.Point, screen gaze.Screen) bool {
	w, h := float64(screen.Width), float64(screen.Height)
	cx, cy := w/2, h/2
	wm, hm := w*r.WidthMargin, h*r.HeightMargin
	x, y := float64(p.X), float64(p.Y)
	return cx-wm < x && x < cx+wm && cy-hm < y && y < cy+hm
}

// Mapper binds a calibration to a screen and tracks the current iris size.
// It is owned by a single tracking loop and is not safe for concurrent use.
type Mapper struct {
	calib  calibration.Result
	screen gaze.Screen
	region Region

	currentIris float64
	remeasured  int
}

// NewMapper validates the calibration. The current iris size starts at the
// calibration baseline.
func NewMapper(calib calibration.Result, screen gaze.Screen, region Region) (*Mapper, error) {
	if err := calib.Validate(); err != nil {
		return nil, err
	}
	if err := screen.Validate(); err != nil {
		return nil, err
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}
	return &Mapper{
		calib:       calib,
		screen:      screen,
		region:      region,
		currentIris: calib.BaseIrisSize,
	}, nil
}

// Map maps r with the current distance factor.
func (m *Mapper) Map(r gaze.Ratio) (gaze.Point, error) {
	return Map(r, m.calib, m.screen, m.currentIris)
}

// Observe re-measures the iris when p falls inside the straight-ahead
// region. Non-positive measurements are ignored. It reports whether the
// current iris size was updated.
func (m *Mapper) Observe(p gaze.Point, det gaze.Detector) bool {
	if det == nil || !m.region.Contains(p, m.screen) {
		return false
	}
	d := det.MeasureIrisDiameter()
	if !(d > 0) || math.IsInf(d, 0) {
		return false
	}
	m.currentIris = d
	m.remeasured++
	return true
}

// CurrentIris returns the iris size used for the next Map.
func (m *Mapper) CurrentIris() float64 {
	return m.currentIris
}

// DistFactor returns the factor applied by the next Map.
func (m *Mapper) DistFactor() float64 {
	return DistFactor(m.calib.BaseIrisSize, m.currentIris)
}

// Remeasured returns how many times Observe updated the iris size.
func (m *Mapper) Remeasured() int {
	return m.remeasured
}

// Calibration returns the bound calibration.
func (m *Mapper) Calibration() calibration.Result {
	return m.calib
}
