package stabilize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

var screen = gaze.Screen{Width: 1920, Height: 1080}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, screen)
	require.NoError(t, err)
	return e
}

// smallRadius keeps (100,100) and (400,400) apart: r is about 192 px.
func smallRadius(k int) Config {
	cfg := DefaultConfig()
	cfg.Capacity = k
	cfg.RadiusFraction = 0.1
	return cfg
}

func TestEngine_ConstantInputIsIdempotent(t *testing.T) {
	t.Parallel()
	for _, k := range []int{1, 2, 5, 20} {
		e := newEngine(t, smallRadius(k))
		p := gaze.Pt(613, 247)
		for i := 0; i < 3*k+1; i++ {
			assert.Equal(t, p, e.Push(p), "k=%d frame %d", k, i)
		}
	}
}

func TestEngine_RejectsSingleOutlier(t *testing.T) {
	t.Parallel()
	home := gaze.Pt(100, 100)
	for _, k := range []int{2, 3, 10} {
		cfg := DefaultConfig()
		cfg.Capacity = k
		e := newEngine(t, cfg)
		for i := 0; i < k; i++ {
			e.Push(home)
		}
		assert.Equal(t, home, e.Push(gaze.Pt(900, 900)), "k=%d outlier", k)
		for i := 0; i < k-1; i++ {
			assert.Equal(t, home, e.Push(home), "k=%d frame %d", k, i)
		}
		assert.Empty(t, e.State().Candidate)
		assert.Equal(t, 1, e.State().Rejections)
	}
}

func TestEngine_AcceptsSustainedShift(t *testing.T) {
	t.Parallel()
	for _, k := range []int{2, 4} {
		e := newEngine(t, smallRadius(k))
		for i := 0; i < k; i++ {
			e.Push(gaze.Pt(100, 100))
		}
		var out gaze.Point
		for i := 0; i < k; i++ {
			out = e.Push(gaze.Pt(400, 400))
			if i < k-1 {
				assert.Equal(t, 0, e.State().Promotions, "promoted early at %d", i)
			}
		}
		assert.Equal(t, gaze.Pt(400, 400), out, "k=%d", k)
		assert.Equal(t, 1, e.State().Promotions)
		assert.Equal(t, gaze.Pt(400, 400), e.Push(gaze.Pt(400, 400)))
	}
}

func TestEngine_CandidateOutputIsCandidateCentroid(t *testing.T) {
	t.Parallel()
	e := newEngine(t, smallRadius(3))
	for i := 0; i < 3; i++ {
		e.Push(gaze.Pt(100, 100))
	}
	assert.Equal(t, gaze.Pt(100, 100), e.Push(gaze.Pt(400, 400)), "first candidate point reports current")
	assert.Equal(t, gaze.Pt(405, 400), e.Push(gaze.Pt(410, 400)))
}

func TestEngine_Bootstrap(t *testing.T) {
	t.Parallel()
	e := newEngine(t, smallRadius(2))
	assert.Equal(t, gaze.Pt(0, 0), e.Push(gaze.Pt(0, 0)))
	// Far apart points are accepted while the current cluster fills.
	assert.Equal(t, gaze.Pt(500, 500), e.Push(gaze.Pt(1000, 1000)))
	assert.Len(t, e.State().Current, 2)
}

func TestEngine_Reset(t *testing.T) {
	t.Parallel()
	e := newEngine(t, smallRadius(2))
	e.Push(gaze.Pt(100, 100))
	e.Push(gaze.Pt(100, 100))
	e.Push(gaze.Pt(900, 900))
	e.Reset()
	s := e.State()
	assert.Empty(t, s.Current)
	assert.Empty(t, s.Candidate)
	assert.Equal(t, gaze.Pt(900, 900), e.Push(gaze.Pt(900, 900)))
}

func TestEngine_MovementConfirmation(t *testing.T) {
	t.Parallel()
	cfg := smallRadius(2)
	cfg.ConfirmMovement = true
	cfg.SameDirection = 2

	t.Run("consistent", func(t *testing.T) {
		e := newEngine(t, cfg)
		e.Push(gaze.Pt(100, 100))
		e.Push(gaze.Pt(100, 100))
		e.Push(gaze.Pt(400, 400))
		assert.Equal(t, gaze.Pt(410, 410), e.Push(gaze.Pt(420, 420)))
		assert.Equal(t, 1, e.State().Promotions)
	})

	t.Run("reversal", func(t *testing.T) {
		e := newEngine(t, cfg)
		e.Push(gaze.Pt(100, 100))
		e.Push(gaze.Pt(100, 100))
		e.Push(gaze.Pt(450, 450))
		// Back toward the fixation: the two deltas disagree.
		assert.Equal(t, gaze.Pt(100, 100), e.Push(gaze.Pt(400, 400)))
		s := e.State()
		assert.Equal(t, 0, s.Promotions)
		assert.Equal(t, 1, s.Rejections)
		assert.Empty(t, s.Candidate)
		assert.Equal(t, []gaze.Point{gaze.Pt(100, 100), gaze.Pt(100, 100)}, s.Current)
	})

	t.Run("tolerated flip", func(t *testing.T) {
		c := cfg
		c.Capacity = 3
		c.SameDirection = 3
		c.MaxFlips = 1
		e := newEngine(t, c)
		for i := 0; i < 3; i++ {
			e.Push(gaze.Pt(100, 100))
		}
		e.Push(gaze.Pt(400, 400))
		e.Push(gaze.Pt(450, 450))
		// One reversal among two checked pairs.
		e.Push(gaze.Pt(420, 420))
		assert.Equal(t, 1, e.State().Promotions)
	})

	t.Run("path longer than candidate", func(t *testing.T) {
		c := cfg
		c.SameDirection = 3
		e := newEngine(t, c)
		e.Push(gaze.Pt(100, 100))
		e.Push(gaze.Pt(100, 100))
		var out gaze.Point
		for i := 0; i < 200; i++ {
			out = e.Push(gaze.Pt(400+i, 400+i))
		}
		s := e.State()
		assert.Positive(t, s.Promotions)
		assert.Less(t, out.Distance(gaze.Pt(599, 599)), e.Radius(), "engine stuck at %v", out)
	})
}

func TestCluster(t *testing.T) {
	t.Parallel()
	c := NewCluster(3)
	assert.True(t, c.Within(gaze.Pt(5000, 5000), 1), "empty cluster accepts everything")
	_, ok := c.Last()
	assert.False(t, ok)

	c.Push(gaze.Pt(0, 0))
	c.Push(gaze.Pt(10, 0))
	c.Push(gaze.Pt(20, 0))
	assert.True(t, c.Full())
	c.Push(gaze.Pt(31, 0))
	assert.Equal(t, []gaze.Point{gaze.Pt(10, 0), gaze.Pt(20, 0), gaze.Pt(31, 0)}, c.Points())
	assert.Equal(t, gaze.Pt(20, 0), c.Centroid())

	last, ok := c.Last()
	assert.True(t, ok)
	assert.Equal(t, gaze.Pt(31, 0), last)

	assert.True(t, c.Within(gaze.Pt(20, 0), 11))
	assert.False(t, c.Within(gaze.Pt(20, 0), 10.9))

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, gaze.Point{}, c.Centroid())
}

func TestConfig(t *testing.T) {
	t.Parallel()
	for name, cfg := range map[string]Config{
		"default": DefaultConfig(),
		"smooth":  SmoothConfig(),
		"pursuit": PursuitConfig(),
	} {
		assert.NoError(t, cfg.Validate(), name)
	}

	assert.InDelta(t, 576, DefaultConfig().Radius(screen), 1e-9)
	d := DefaultConfig()
	d.RadiusBase = RadiusDiagonal
	assert.InDelta(t, 0.3*screen.Diagonal(), d.Radius(screen), 1e-9)

	bad := DefaultConfig()
	bad.Capacity = 0
	assert.Error(t, bad.Validate())

	bad = PursuitConfig()
	bad.SameDirection = 1
	assert.Error(t, bad.Validate())

	// A path of 2k points cannot hold SameDirection+1 points.
	for _, tc := range []struct{ k, same int }{{1, 2}, {2, 4}, {3, 6}} {
		bad = PursuitConfig()
		bad.Capacity = tc.k
		bad.SameDirection = tc.same
		assert.Error(t, bad.Validate(), "k=%d same=%d", tc.k, tc.same)
	}
	ok := PursuitConfig()
	ok.Capacity = 2
	ok.SameDirection = 3
	assert.NoError(t, ok.Validate())

	b, err := ParseRadiusBase("Diagonal")
	require.NoError(t, err)
	assert.Equal(t, RadiusDiagonal, b)
	_, err = ParseRadiusBase("height")
	assert.Error(t, err)
}
