// Package calibration learns the mapping from gaze ratios to screen geometry.
//
// A Session walks the user through a grid of fixation points, one video
// frame per Step, and derives the boundary ratios of the screen plus a
// baseline iris size. A Tester then replays the calibrated mapping against
// random targets and scores it.
package calibration

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-gaze/pkg/aggregate"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Dwell holds the per-phase frame counts of a calibration point.
// Counts are frames, not wall time, so dwell scales with the frame rate.
type Dwell struct {
	Instruction int `json:"instruction"` // Shown once before the first point
	Fixation    int `json:"fixation"`    // Per point, before sampling starts
	Sampling    int `json:"sampling"`    // Per point
}

// DefaultDwell returns the dwell counts used at ~30 fps.
func DefaultDwell() Dwell {
	return Dwell{
		Instruction: 20,
		Fixation:    5,
		Sampling:    10,
	}
}

// Validate rejects negative counts and an empty sampling window.
func (d Dwell) Validate() error {
	if d.Instruction < 0 || d.Fixation < 0 {
		return fmt.Errorf("calibration: negative dwell %+v", d)
	}
	if d.Sampling < 1 {
		return fmt.Errorf("calibration: sampling dwell must be >= 1, got %d", d.Sampling)
	}
	return nil
}

// PointRatio is the aggregated ratio of one calibration point.
type PointRatio struct {
	GridPoint
	Ratio   gaze.Ratio `json:"ratio"`
	Samples int        `json:"samples"`
}

// Result is the outcome of a completed calibration.
type Result struct {
	LeftmostHR   float64      `json:"leftmost_hr"`
	RightmostHR  float64      `json:"rightmost_hr"`
	TopVR        float64      `json:"top_vr"`
	BottomVR     float64      `json:"bottom_vr"`
	BaseIrisSize float64      `json:"base_iris_size"`
	Points       []PointRatio `json:"points,omitempty"`
}

// Validate returns ErrDegenerateCalibration if either axis has coinciding
// extremes or the baseline iris size is unusable.
func (r Result) Validate() error {
	if r.LeftmostHR == r.RightmostHR {
		return fmt.Errorf("%w: leftmost and rightmost horizontal ratio both %.4f",
			gaze.ErrDegenerateCalibration, r.LeftmostHR)
	}
	if r.TopVR == r.BottomVR {
		return fmt.Errorf("%w: top and bottom vertical ratio both %.4f",
			gaze.ErrDegenerateCalibration, r.TopVR)
	}
	if !(r.BaseIrisSize > 0) {
		return fmt.Errorf("%w: no baseline iris size", gaze.ErrDegenerateCalibration)
	}
	return nil
}

// Frame tells the display collaborator what to draw for one Step.
type Frame struct {
	Phase       Phase      `json:"phase"`
	Point       *GridPoint `json:"point,omitempty"` // Marker to draw, nil for none
	Instruction bool       `json:"instruction"`
	Index       int        `json:"index"` // Current point index
	Total       int        `json:"total"` // Number of calibration points
}

// Session is the calibration state machine. It is driven by exactly one
// Step call per video frame and is not safe for concurrent use.
type Session struct {
	grid   Grid
	dwell  Dwell
	screen gaze.Screen
	points []GridPoint
	logger *slog.Logger

	phase Phase
	err   error

	// Counters for the current point
	instrFrame  int
	fixFrame    int
	sampleFrame int
	current     int

	samples [][]gaze.Ratio
	ratios  []PointRatio

	irisSum   float64
	irisCount int

	result Result
}

// NewSession creates a calibration session for the given screen.
// A nil logger uses slog.Default().
func NewSession(grid Grid, dwell Dwell, screen gaze.Screen, logger *slog.Logger) (*Session, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if err := dwell.Validate(); err != nil {
		return nil, err
	}
	if err := screen.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		grid:   grid,
		dwell:  dwell,
		screen: screen,
		points: grid.Points(screen),
		logger: logger.With("component", "calibration"),
	}
	s.Reset()
	return s, nil
}

// Reset discards all progress and restarts calibration from the
// instruction phase.
func (s *Session) Reset() {
	s.phase = PhaseInstruction
	s.err = nil
	s.instrFrame, s.fixFrame, s.sampleFrame, s.current = 0, 0, 0, 0
	s.samples = make([][]gaze.Ratio, len(s.points))
	s.ratios = make([]PointRatio, len(s.points))
	s.irisSum, s.irisCount = 0, 0
	s.result = Result{}
}

// Step advances the session by one frame. det may report no pupils; such
// frames are skipped for sampling but still advance the dwell counters.
// A non-nil error is fatal for this run: the session stays in PhaseFailed
// until Reset.
func (s *Session) Step(det gaze.Detector) (Frame, error) {
	switch s.phase {
	case PhaseComplete:
		return s.frame(nil), nil
	case PhaseFailed:
		return s.frame(nil), s.err
	}

	if s.current < len(s.points) {
		p := &s.points[s.current]
		switch {
		case s.instrFrame < s.dwell.Instruction:
			s.instrFrame++
			s.phase = PhaseInstruction
			f := s.frame(nil)
			f.Instruction = true
			return f, nil

		case s.fixFrame < s.dwell.Fixation:
			s.fixFrame++
			s.phase = PhaseFixation
			return s.frame(p), nil

		case s.sampleFrame < s.dwell.Sampling:
			s.record(p, det)
			s.sampleFrame++
			s.phase = PhaseSampling
			return s.frame(p), nil

		default:
			if err := s.aggregate(p); err != nil {
				return s.fail(err)
			}
			f := s.frame(p)
			s.current++
			s.fixFrame, s.sampleFrame = 0, 0
			return f, nil
		}
	}

	s.phase = PhaseExtremesComputed
	res, err := s.extremes()
	if err != nil {
		return s.fail(err)
	}
	s.result = res
	s.phase = PhaseComplete
	s.logger.Info("calibration complete",
		"leftmost_hr", res.LeftmostHR, "rightmost_hr", res.RightmostHR,
		"top_vr", res.TopVR, "bottom_vr", res.BottomVR,
		"base_iris", res.BaseIrisSize)
	return s.frame(nil), nil
}

// record stores the frame's ratio and, at the center point, an iris
// diameter measurement.
func (s *Session) record(p *GridPoint, det gaze.Detector) {
	if r, ok := gaze.ReadRatio(det); ok {
		s.samples[s.current] = append(s.samples[s.current], r)
	}
	if p.Center && det != nil {
		if d := det.MeasureIrisDiameter(); d > 0 && !math.IsInf(d, 0) {
			s.irisSum += d
			s.irisCount++
		}
	}
}

func (s *Session) aggregate(p *GridPoint) error {
	samples := s.samples[s.current]
	r, err := aggregate.Aggregate(samples)
	if err != nil {
		return &gaze.PointError{Row: p.Row, Col: p.Col, Err: err}
	}
	s.ratios[s.current] = PointRatio{GridPoint: *p, Ratio: r, Samples: len(samples)}
	s.phase = PhaseAggregated
	s.logger.Debug("point aggregated",
		"row", p.Row, "col", p.Col, "samples", len(samples), "hr", r.H, "vr", r.V)
	return nil
}

// extremes averages the representative ratios along each screen edge.
func (s *Session) extremes() (Result, error) {
	var left, right, top, bottom []float64
	for _, pr := range s.ratios {
		if s.grid.IsLeft(pr.GridPoint) {
			left = append(left, pr.Ratio.H)
		} else if s.grid.IsRight(pr.GridPoint) {
			right = append(right, pr.Ratio.H)
		}
		if s.grid.IsTop(pr.GridPoint) {
			top = append(top, pr.Ratio.V)
		} else if s.grid.IsBottom(pr.GridPoint) {
			bottom = append(bottom, pr.Ratio.V)
		}
	}

	res := Result{
		LeftmostHR:  stat.Mean(left, nil),
		RightmostHR: stat.Mean(right, nil),
		TopVR:       stat.Mean(top, nil),
		BottomVR:    stat.Mean(bottom, nil),
		Points:      append([]PointRatio(nil), s.ratios...),
	}
	if s.irisCount > 0 {
		res.BaseIrisSize = s.irisSum / float64(s.irisCount)
	}
	if err := res.Validate(); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Session) fail(err error) (Frame, error) {
	s.phase = PhaseFailed
	s.err = err
	s.logger.Error("calibration failed", "error", err)
	return s.frame(nil), err
}

func (s *Session) frame(p *GridPoint) Frame {
	f := Frame{Phase: s.phase, Index: s.current, Total: len(s.points)}
	if p != nil {
		cp := *p
		f.Point = &cp
	}
	return f
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Err returns the error that failed the session, if any.
func (s *Session) Err() error {
	return s.err
}

// IsCompleted reports whether calibration reached PhaseComplete.
func (s *Session) IsCompleted() bool {
	return s.phase == PhaseComplete
}

// Result returns the calibration result. ok is false until IsCompleted.
func (s *Session) Result() (Result, bool) {
	if !s.IsCompleted() {
		return Result{}, false
	}
	res := s.result
	res.Points = append([]PointRatio(nil), s.result.Points...)
	return res, true
}

// Points returns the calibration points in display order.
func (s *Session) Points() []GridPoint {
	return append([]GridPoint(nil), s.points...)
}

// Screen returns the screen the session was laid out for.
func (s *Session) Screen() gaze.Screen {
	return s.screen
}
