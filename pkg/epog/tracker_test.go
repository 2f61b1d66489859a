package epog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

var screen = gaze.Screen{Width: 1920, Height: 1080}

// lookAt is a detector for a user looking at a screen point. Ratios are a
// linear function of the point, spanning 0.70..0.50 horizontally and
// 0.70..0.90 vertically.
type lookAt struct {
	p       gaze.Point
	lost    bool
	iris    float64
	measure int
}

func (d *lookAt) PupilsLocated() bool { return !d.lost }

func (d *lookAt) HorizontalRatio() (float64, bool) {
	return 0.70 - 0.20*float64(d.p.X)/float64(screen.Width), !d.lost
}

func (d *lookAt) VerticalRatio() (float64, bool) {
	return 0.70 + 0.20*float64(d.p.Y)/float64(screen.Height), !d.lost
}

func (d *lookAt) MeasureIrisDiameter() float64 {
	d.measure++
	return d.iris
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Dwell = calibration.Dwell{Instruction: 1, Fixation: 1, Sampling: 2}
	cfg.Test = calibration.TestConfig{Points: 2, Dwell: 3, Margin: 20}
	cfg.Seed = 7
	return cfg
}

type memorySink struct {
	records []calibration.TestRecord
	closed  int
}

func (m *memorySink) Record(rec calibration.TestRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) Close() error {
	m.closed++
	return nil
}

// follow steps the tracker with a user who looks at whatever was drawn on
// the previous frame, until the tracker reaches mode or maxSteps.
func follow(t *testing.T, tr *Tracker, mode Mode, maxSteps int) {
	t.Helper()
	det := &lookAt{p: screen.Center(), iris: 50}
	for i := 0; i < maxSteps; i++ {
		if tr.Mode() == mode {
			return
		}
		u, err := tr.Step(det)
		require.NoError(t, err, "step %d", i)
		switch {
		case u.Calibration != nil && u.Calibration.Point != nil:
			det.p = u.Calibration.Point.Pos
		case u.Test != nil:
			det.p = u.Test.Target
		}
	}
	require.Equal(t, mode, tr.Mode(), "mode not reached after %d steps", maxSteps)
}

func TestTracker_CalibrateTestTrack(t *testing.T) {
	tr, err := New(testConfig(), screen, nil)
	require.NoError(t, err)

	sink := &memorySink{}
	tr.SetSinkFactory(func() (calibration.ErrorSink, error) { return sink, nil })
	var updates int
	tr.SetObserver(ObserverFunc(func(Update) { updates++ }))

	_, err = tr.Estimate(&lookAt{})
	assert.ErrorIs(t, err, ErrNotCalibrated)

	follow(t, tr, ModeTracking, 200)

	st := tr.Status()
	require.NotNil(t, st.Calibration)
	assert.InDelta(t, 0.70-0.20*20/1920.0, st.Calibration.LeftmostHR, 1e-9)
	assert.InDelta(t, 0.70-0.20*1900/1920.0, st.Calibration.RightmostHR, 1e-9)
	assert.InDelta(t, 0.70+0.20*20/1080.0, st.Calibration.TopVR, 1e-9)
	assert.InDelta(t, 0.70+0.20*1060/1080.0, st.Calibration.BottomVR, 1e-9)
	assert.Equal(t, 50.0, st.Calibration.BaseIrisSize)

	require.NotNil(t, st.Test)
	assert.Equal(t, 6, st.Test.Records)
	assert.Len(t, sink.records, 6)
	assert.Equal(t, 1, sink.closed)
	assert.Equal(t, int(st.Frames), updates)

	u, err := tr.Step(&lookAt{p: screen.Center(), iris: 50})
	require.NoError(t, err)
	assert.Equal(t, ModeTracking, u.Mode)
	assert.True(t, u.Estimate.Located)
	assert.False(t, u.Estimate.Stabilized)
	assert.InDelta(t, 960, u.Estimate.Raw.X, 1)
	assert.InDelta(t, 540, u.Estimate.Raw.Y, 1)

	u, err = tr.Step(&lookAt{lost: true})
	require.NoError(t, err)
	assert.False(t, u.Estimate.Located, "lost pupils yield no estimate, not an error")
}

func TestTracker_StraightAheadRemeasuresIris(t *testing.T) {
	tr, err := New(testConfig(), screen, nil)
	require.NoError(t, err)
	follow(t, tr, ModeTracking, 200)

	// User moved closer: iris appears larger at the center.
	det := &lookAt{p: screen.Center(), iris: 100}
	_, err = tr.Step(det)
	require.NoError(t, err)
	assert.Equal(t, 1, det.measure)
	assert.Equal(t, 100.0, tr.Status().CurrentIris)

	// The top-left corner is outside the straight-ahead region.
	corner := &lookAt{p: gaze.Pt(20, 20), iris: 10}
	_, err = tr.Step(corner)
	require.NoError(t, err)
	assert.Equal(t, 0, corner.measure)
}

func TestTracker_Stabilized(t *testing.T) {
	cfg := testConfig()
	cfg.Stabilize = true
	tr, err := New(cfg, screen, nil)
	require.NoError(t, err)
	follow(t, tr, ModeTracking, 200)

	var u Update
	for i := 0; i < 3; i++ {
		u, err = tr.Step(&lookAt{p: gaze.Pt(500, 500), iris: 50})
		require.NoError(t, err)
	}
	assert.True(t, u.Estimate.Stabilized)
	assert.Equal(t, u.Estimate.Stable, u.Estimate.Point())
	require.NotNil(t, tr.Status().Stabilizer)
}

func TestTracker_FailsWithoutPupilsAndRecalibrates(t *testing.T) {
	tr, err := New(testConfig(), screen, nil)
	require.NoError(t, err)

	lost := &lookAt{lost: true}
	var stepErr error
	for i := 0; i < 20 && stepErr == nil; i++ {
		_, stepErr = tr.Step(lost)
	}
	assert.ErrorIs(t, stepErr, gaze.ErrEmptySampleSet)
	assert.Equal(t, ModeFailed, tr.Mode())
	assert.NotEmpty(t, tr.Status().Err)

	_, err = tr.Step(lost)
	assert.Error(t, err, "failed tracker keeps reporting its error")

	tr.Recalibrate()
	assert.Equal(t, ModeCalibrating, tr.Mode())
	assert.Empty(t, tr.Status().Err)
	follow(t, tr, ModeTracking, 200)
}

func TestTracker_RecalibrateDuringTestClosesSink(t *testing.T) {
	tr, err := New(testConfig(), screen, nil)
	require.NoError(t, err)
	sink := &memorySink{}
	tr.SetSinkFactory(func() (calibration.ErrorSink, error) { return sink, nil })

	follow(t, tr, ModeTesting, 200)
	tr.Recalibrate()
	assert.Equal(t, 1, sink.closed)
	assert.Nil(t, tr.Status().Calibration)
}

func TestTracker_CloseDuringTest(t *testing.T) {
	tr, err := New(testConfig(), screen, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	sink := &memorySink{}
	tr.SetSinkFactory(func() (calibration.ErrorSink, error) { return sink, nil })
	follow(t, tr, ModeTesting, 200)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, sink.closed)
}

func TestObservers(t *testing.T) {
	var got []string
	a := ObserverFunc(func(u Update) { got = append(got, "a") })
	b := ObserverFunc(func(u Update) { got = append(got, "b") })

	tr, err := New(testConfig(), screen, nil)
	require.NoError(t, err)
	tr.SetObserver(Observers(a, nil, b))
	_, err = tr.Step(&lookAt{p: screen.Center(), iris: 50})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestRun(t *testing.T) {
	tr, err := New(testConfig(), screen, nil)
	require.NoError(t, err)

	frames := make(chan *lookAt, 3)
	for i := 0; i < 3; i++ {
		frames <- &lookAt{p: screen.Center(), iris: 50}
	}
	close(frames)
	require.NoError(t, Run(context.Background(), tr, frames))
	assert.Equal(t, int64(3), tr.Status().Frames)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Run(ctx, tr, make(chan *lookAt)), context.Canceled)
}

func TestConfig_Presets(t *testing.T) {
	for _, name := range []string{"default", "stable", "pursuit"} {
		cfg, err := Preset(name)
		require.NoError(t, err, name)
		assert.NoError(t, cfg.Validate(), name)
	}
	assert.True(t, StableConfig().Stabilize)
	assert.True(t, PursuitConfig().Stabilizer.ConfirmMovement)

	_, err := Preset("turbo")
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.Grid.Rows = 1
	bad.Stabilizer.Capacity = 0
	assert.Error(t, bad.Validate())
}
