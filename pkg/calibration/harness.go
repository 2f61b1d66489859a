package calibration

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// ErrSink marks a failure of the test-error sink. It never stops the test
// run; callers log it and keep stepping.
var ErrSink = errors.New("calibration: error sink failure")

// TestRecord scores one test frame.
type TestRecord struct {
	Target   gaze.Point `json:"target"`
	Estimate gaze.Point `json:"estimate"`
	Error    float64    `json:"error"` // Euclidean distance in pixels
}

// ErrorSink receives test records as they are produced. It is closed once,
// when the last test point has been shown.
type ErrorSink interface {
	Record(rec TestRecord) error
	Close() error
}

// Estimator produces the EPOG for a frame. Implemented by the tracking
// pipeline so that tests score exactly what steady-state tracking emits.
type Estimator interface {
	Estimate(det gaze.Detector) (gaze.Estimate, error)
}

// TestConfig controls the accuracy test.
type TestConfig struct {
	Points int `json:"points"` // Number of random targets
	Dwell  int `json:"dwell"`  // Frames per target
	Margin int `json:"margin"` // Inset of the target rectangle in pixels
}

// DefaultTestConfig returns five targets shown for 20 frames each.
func DefaultTestConfig() TestConfig {
	return TestConfig{
		Points: 5,
		Dwell:  20,
		Margin: DefaultMarkerRadius,
	}
}

// Validate checks the test configuration.
func (c TestConfig) Validate() error {
	if c.Points < 0 || c.Dwell < 1 || c.Margin < 0 {
		return fmt.Errorf("calibration: invalid test config %+v", c)
	}
	return nil
}

// TestFrame tells the display collaborator what to draw for one test Step.
type TestFrame struct {
	Phase  Phase       `json:"phase"`
	Target gaze.Point  `json:"target"`
	Index  int         `json:"index"`
	Total  int         `json:"total"`
	Record *TestRecord `json:"record,omitempty"` // Nil when pupils were not located

	// Set on the frame that completed the test
	Summary *TestSummary `json:"summary,omitempty"`
}

// TestSummary aggregates the records of a test run.
type TestSummary struct {
	Records    int     `json:"records"`
	MeanError  float64 `json:"mean_error"`
	MaxError   float64 `json:"max_error"`
	SinkErrors int     `json:"sink_errors"`
}

// Tester is the accuracy test state machine. Like Session it is stepped
// once per frame and is not safe for concurrent use.
type Tester struct {
	cfg     TestConfig
	targets []gaze.Point
	sink    ErrorSink
	logger  *slog.Logger

	current int
	frame   int
	tested  bool

	records  int
	errSum   float64
	errMax   float64
	sinkErrs int
}

// NewTester draws cfg.Points uniform random targets inside the margin-inset
// screen. A nil rng is seeded from the clock; a nil sink discards records.
func NewTester(cfg TestConfig, screen gaze.Screen, rng *rand.Rand, sink ErrorSink, logger *slog.Logger) (*Tester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := screen.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = slog.Default()
	}

	minX, maxX := cfg.Margin, screen.Width-cfg.Margin
	minY, maxY := cfg.Margin, screen.Height-cfg.Margin
	if maxX < minX || maxY < minY {
		return nil, fmt.Errorf("calibration: test margin %d too large for %dx%d",
			cfg.Margin, screen.Width, screen.Height)
	}

	targets := make([]gaze.Point, cfg.Points)
	for i := range targets {
		targets[i] = gaze.Pt(minX+rng.Intn(maxX-minX+1), minY+rng.Intn(maxY-minY+1))
	}

	t := &Tester{
		cfg:     cfg,
		targets: targets,
		sink:    sink,
		logger:  logger.With("component", "test"),
	}
	if len(targets) == 0 {
		t.finish()
	}
	return t, nil
}

// Step shows the current target for one frame and scores est's estimate.
// Errors wrapping ErrSink are informational; any other error comes from
// the estimator and is fatal.
func (t *Tester) Step(det gaze.Detector, est Estimator) (TestFrame, error) {
	if t.tested {
		return TestFrame{Phase: PhaseTestComplete, Index: t.current, Total: len(t.targets)}, nil
	}

	target := t.targets[t.current]
	f := TestFrame{Phase: PhaseTesting, Target: target, Index: t.current, Total: len(t.targets)}
	if t.frame == 0 {
		t.logger.Debug("test point", "index", t.current, "target", target.String())
	}

	var errs []error
	e, err := est.Estimate(det)
	if err != nil {
		return f, fmt.Errorf("calibration: estimate test frame: %w", err)
	}
	if e.Located {
		p := e.Point()
		rec := TestRecord{Target: target, Estimate: p, Error: p.Distance(target)}
		f.Record = &rec
		t.records++
		t.errSum += rec.Error
		if rec.Error > t.errMax {
			t.errMax = rec.Error
		}
		if t.sink != nil {
			if err := t.sink.Record(rec); err != nil {
				t.sinkErrs++
				errs = append(errs, fmt.Errorf("%w: record: %w", ErrSink, err))
			}
		}
	}

	t.frame++
	if t.frame >= t.cfg.Dwell {
		t.current++
		t.frame = 0
	}
	if t.current >= len(t.targets) {
		if err := t.finish(); err != nil {
			errs = append(errs, err)
		}
		s := t.Summary()
		f.Summary = &s
	}
	return f, errors.Join(errs...)
}

func (t *Tester) finish() error {
	t.tested = true
	s := t.Summary()
	t.logger.Info("test complete", "records", s.Records, "mean_error", s.MeanError, "max_error", s.MaxError)
	if t.sink == nil {
		return nil
	}
	if err := t.sink.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrSink, err)
	}
	return nil
}

// Close ends the test early. The sink is closed if it has not been
// already; calling Close after the test finished is a no-op.
func (t *Tester) Close() error {
	if t.tested {
		return nil
	}
	return t.finish()
}

// IsTested reports whether every test point has been shown.
func (t *Tester) IsTested() bool {
	return t.tested
}

// Targets returns the random test targets in display order.
func (t *Tester) Targets() []gaze.Point {
	return append([]gaze.Point(nil), t.targets...)
}

// Summary returns the running accuracy of the test.
func (t *Tester) Summary() TestSummary {
	s := TestSummary{Records: t.records, MaxError: t.errMax, SinkErrors: t.sinkErrs}
	if t.records > 0 {
		s.MeanError = t.errSum / float64(t.records)
	}
	return s
}
