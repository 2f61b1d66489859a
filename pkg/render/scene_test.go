package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/epog"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

var screen = gaze.Screen{Width: 1920, Height: 1080}

func TestCompose(t *testing.T) {
	t.Parallel()
	point := &calibration.GridPoint{Row: 0, Col: 2, Pos: gaze.Pt(1900, 20)}
	est := gaze.Estimate{Raw: gaze.Pt(1, 2), Stable: gaze.Pt(3, 4), Located: true, Stabilized: true}

	tests := []struct {
		name    string
		u       epog.Update
		circles []Circle
		texts   []Text
		min     bool
	}{
		{
			name:  "instruction",
			u:     epog.Update{Calibration: &calibration.Frame{Phase: calibration.PhaseInstruction, Instruction: true}},
			texts: []Text{{Center: gaze.Pt(960, 540), Content: "Please, fixate on the red dots", Color: White}},
		},
		{
			name:    "calibration point",
			u:       epog.Update{Calibration: &calibration.Frame{Phase: calibration.PhaseSampling, Point: point}},
			circles: []Circle{{Center: gaze.Pt(1900, 20), Radius: 20, Color: Red}},
		},
		{
			name: "test target with estimate",
			u: epog.Update{
				Mode:     epog.ModeTesting,
				Test:     &calibration.TestFrame{Phase: calibration.PhaseTesting, Target: gaze.Pt(500, 600)},
				Estimate: est,
			},
			circles: []Circle{
				{Center: gaze.Pt(500, 600), Radius: 20, Color: Red},
				{Center: gaze.Pt(3, 4), Radius: 5, Color: LightGrey},
			},
		},
		{
			name: "test target without pupils",
			u: epog.Update{
				Mode: epog.ModeTesting,
				Test: &calibration.TestFrame{Phase: calibration.PhaseTesting, Target: gaze.Pt(500, 600)},
			},
			circles: []Circle{{Center: gaze.Pt(500, 600), Radius: 20, Color: Red}},
		},
		{
			name: "tracking minimizes",
			u:    epog.Update{Mode: epog.ModeTracking, Estimate: est},
			min:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compose(tt.u, screen, DefaultStyle())
			assert.Equal(t, Background, s.Background)
			assert.Equal(t, tt.circles, s.Circles)
			assert.Equal(t, tt.texts, s.Texts)
			assert.Equal(t, tt.min, s.Minimize)
		})
	}
}

func TestHeadless(t *testing.T) {
	t.Parallel()
	var d Display = Headless{}
	assert.NoError(t, d.Render(Scene{}))
	assert.False(t, d.Quit())
	assert.NoError(t, d.Close())
}
