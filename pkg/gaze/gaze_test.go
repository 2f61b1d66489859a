package gaze

import (
	"errors"
	"math"
	"testing"
)

type stubDetector struct {
	located bool
	h, v    *float64
}

func (s stubDetector) PupilsLocated() bool { return s.located }

func (s stubDetector) HorizontalRatio() (float64, bool) {
	if s.h == nil {
		return 0, false
	}
	return *s.h, true
}

func (s stubDetector) VerticalRatio() (float64, bool) {
	if s.v == nil {
		return 0, false
	}
	return *s.v, true
}

func (s stubDetector) MeasureIrisDiameter() float64 { return 0 }

func f(v float64) *float64 { return &v }

func TestReadRatio(t *testing.T) {
	tests := []struct {
		name   string
		det    Detector
		want   Ratio
		wantOK bool
	}{
		{"nil detector", nil, Ratio{}, false},
		{"pupils not located", stubDetector{located: false, h: f(0.5), v: f(0.5)}, Ratio{}, false},
		{"missing vertical", stubDetector{located: true, h: f(0.5)}, Ratio{}, false},
		{"both present", stubDetector{located: true, h: f(0.6), v: f(0.8)}, Ratio{H: 0.6, V: 0.8}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ReadRatio(tt.det)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ReadRatio() = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPointDistance(t *testing.T) {
	if d := Pt(0, 0).Distance(Pt(3, 4)); d != 5 {
		t.Errorf("Distance = %v, want 5", d)
	}
	if d := Pt(10, 10).Distance(Pt(10, 10)); d != 0 {
		t.Errorf("Distance to self = %v, want 0", d)
	}
}

func TestScreen(t *testing.T) {
	s := Screen{Width: 1920, Height: 1080}
	if c := s.Center(); c != Pt(960, 540) {
		t.Errorf("Center = %v, want (960,540)", c)
	}
	if math.Abs(s.Diagonal()-2202.9) > 0.1 {
		t.Errorf("Diagonal = %v", s.Diagonal())
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := (Screen{Width: 0, Height: 1080}).Validate(); !errors.Is(err, ErrInvalidScreen) {
		t.Errorf("Validate zero width = %v, want ErrInvalidScreen", err)
	}
}

func TestEstimatePoint(t *testing.T) {
	e := Estimate{Raw: Pt(1, 2), Stable: Pt(3, 4), Located: true}
	if e.Point() != Pt(1, 2) {
		t.Errorf("unstabilized Point = %v", e.Point())
	}
	e.Stabilized = true
	if e.Point() != Pt(3, 4) {
		t.Errorf("stabilized Point = %v", e.Point())
	}
}

func TestPointError(t *testing.T) {
	err := &PointError{Row: 0, Col: 2, Err: ErrEmptySampleSet}
	if !errors.Is(err, ErrEmptySampleSet) {
		t.Error("PointError should unwrap to ErrEmptySampleSet")
	}
	if err.Error() != "gaze: calibration point [0,2]: gaze: empty sample set" {
		t.Errorf("Error() = %q", err.Error())
	}
}
