package gaze

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the calibration, mapping and tracking packages.
var (
	// ErrPupilsNotLocated marks a frame without both pupils. It is never
	// returned for a single frame: the estimate is simply absent.
	ErrPupilsNotLocated = errors.New("gaze: pupils not located")

	// ErrEmptySampleSet is returned when a calibration point collected no
	// samples. Fatal for the calibration run.
	ErrEmptySampleSet = errors.New("gaze: empty sample set")

	// ErrDegenerateCalibration is returned when calibration extremes
	// coincide, so no ratio-to-pixel mapping exists. Recalibrate.
	ErrDegenerateCalibration = errors.New("gaze: degenerate calibration")

	// ErrInvalidScreen is returned for non-positive screen dimensions.
	ErrInvalidScreen = errors.New("gaze: invalid screen size")
)

// PointError ties an aggregation failure to a calibration grid position.
type PointError struct {
	Row int
	Col int
	Err error
}

// Error implements the error interface.
func (e *PointError) Error() string {
	return fmt.Sprintf("gaze: calibration point [%d,%d]: %v", e.Row, e.Col, e.Err)
}

// Unwrap returns the underlying error.
func (e *PointError) Unwrap() error {
	return e.Err
}
