// Package epog drives the estimated-point-of-gaze pipeline one video frame
// at a time: calibration, then the accuracy test, then steady-state
// tracking.
package epog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/mapping"
	"github.com/teslashibe/go-gaze/pkg/stabilize"
)

// ErrNotCalibrated is returned by Estimate before calibration completes.
var ErrNotCalibrated = errors.New("epog: not calibrated")

// Mode is the active state machine of a Tracker.
type Mode int

const (
	ModeCalibrating Mode = iota
	ModeTesting
	ModeTracking
	ModeFailed
)

var modeNames = [...]string{"calibrating", "testing", "tracking", "failed"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	for i, name := range modeNames {
		if name == string(text) {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("epog: unknown mode %q", text)
}

// Update is the outcome of one Step. Exactly one of Calibration and Test
// is set while calibrating or testing; Estimate is set while testing and
// tracking.
type Update struct {
	Seq         int64                  `json:"seq"`
	Mode        Mode                   `json:"mode"`
	Calibration *calibration.Frame     `json:"calibration,omitempty"`
	Test        *calibration.TestFrame `json:"test,omitempty"`
	Estimate    gaze.Estimate          `json:"estimate"`
}

// Observer is notified after every Step.
type Observer interface {
	OnUpdate(u Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Update)

// OnUpdate implements Observer.
func (f ObserverFunc) OnUpdate(u Update) { f(u) }

// Observers fans an update out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var list []Observer
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(u Update) {
		for _, o := range list {
			o.OnUpdate(u)
		}
	})
}

// SinkFactory opens a fresh error sink for each accuracy test run.
type SinkFactory func() (calibration.ErrorSink, error)

// Status is a snapshot of the tracker for the dashboard.
type Status struct {
	Mode        Mode                     `json:"mode"`
	Phase       calibration.Phase        `json:"phase"`
	Frames      int64                    `json:"frames"`
	Err         string                   `json:"error,omitempty"`
	Calibration *calibration.Result      `json:"calibration,omitempty"`
	Test        *calibration.TestSummary `json:"test,omitempty"`
	Stabilizer  *stabilize.State         `json:"stabilizer,omitempty"`
	CurrentIris float64                  `json:"current_iris,omitempty"`
	Last        gaze.Estimate            `json:"last"`
}

// Tracker owns one calibration/test/tracking pipeline. Step is driven by a
// single frame loop; Status and Recalibrate may be called concurrently
// from the dashboard.
type Tracker struct {
	cfg    Config
	screen gaze.Screen
	logger *slog.Logger

	mu       sync.Mutex
	mode     Mode
	frames   int64
	session  *calibration.Session
	mapper   *mapping.Mapper
	engine   *stabilize.Engine
	tester   *calibration.Tester
	result   *calibration.Result
	summary  *calibration.TestSummary
	last     gaze.Estimate
	err      error
	sinks    SinkFactory
	observer Observer
}

// New creates a tracker for screen. A nil logger uses slog.Default.
func New(cfg Config, screen gaze.Screen, logger *slog.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "epog")
	session, err := calibration.NewSession(cfg.Grid, cfg.Dwell, screen, logger)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		cfg:     cfg,
		screen:  screen,
		logger:  logger,
		session: session,
	}, nil
}

// SetSinkFactory sets where test errors are written. Nil discards them.
func (t *Tracker) SetSinkFactory(f SinkFactory) {
	t.mu.Lock()
	t.sinks = f
	t.mu.Unlock()
}

// SetObserver sets the per-update observer.
func (t *Tracker) SetObserver(o Observer) {
	t.mu.Lock()
	t.observer = o
	t.mu.Unlock()
}

// Step advances the active state machine by one frame. Errors wrapping
// calibration.ErrSink are informational and tracking continues; any other
// error means the run failed and Recalibrate is required.
func (t *Tracker) Step(det gaze.Detector) (Update, error) {
	t.mu.Lock()
	u, err := t.step(det)
	obs := t.observer
	t.mu.Unlock()

	if obs != nil {
		obs.OnUpdate(u)
	}
	return u, err
}

func (t *Tracker) step(det gaze.Detector) (Update, error) {
	t.frames++
	u := Update{Seq: t.frames, Mode: t.mode}

	switch t.mode {
	case ModeCalibrating:
		f, err := t.session.Step(det)
		u.Calibration = &f
		if err != nil {
			return u, t.fail(err)
		}
		if t.session.IsCompleted() {
			if err := t.calibrated(); err != nil {
				return u, t.fail(err)
			}
		}
		return u, nil

	case ModeTesting:
		tf, err := t.tester.Step(det, estimatorFunc(func(d gaze.Detector) (gaze.Estimate, error) {
			est, err := t.estimate(d)
			u.Estimate = est
			return est, err
		}))
		u.Test = &tf
		if err != nil && !errors.Is(err, calibration.ErrSink) {
			return u, t.fail(err)
		}
		if err != nil {
			t.logger.Warn("test error sink", "error", err)
		}
		if t.tester.IsTested() {
			t.tested()
		}
		return u, err

	case ModeTracking:
		est, err := t.estimate(det)
		if err != nil {
			return u, t.fail(err)
		}
		u.Estimate = est
		return u, nil
	}
	return u, t.err
}

// calibrated builds the mapping pipeline and starts the accuracy test.
func (t *Tracker) calibrated() error {
	res, _ := t.session.Result()
	m, err := mapping.NewMapper(res, t.screen, t.cfg.Region)
	if err != nil {
		return err
	}
	e, err := stabilize.New(t.cfg.Stabilizer, t.screen)
	if err != nil {
		return err
	}
	t.result = &res
	t.mapper = m
	t.engine = e

	var sink calibration.ErrorSink
	if t.sinks != nil {
		s, err := t.sinks()
		if err != nil {
			// Persisting test errors is optional; test without a sink.
			t.logger.Warn("open test error sink", "error", err)
		} else {
			sink = s
		}
	}
	seed := t.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	tester, err := calibration.NewTester(t.cfg.Test, t.screen, rand.New(rand.NewSource(seed)), sink, t.logger)
	if err != nil {
		return err
	}
	t.tester = tester
	t.mode = ModeTesting
	t.logger.Info("accuracy test started", "points", t.cfg.Test.Points, "stabilize", t.cfg.Stabilize)

	if tester.IsTested() {
		t.tested()
	}
	return nil
}

func (t *Tracker) tested() {
	s := t.tester.Summary()
	t.summary = &s
	t.mode = ModeTracking
}

func (t *Tracker) fail(err error) error {
	t.mode = ModeFailed
	t.err = err
	t.logger.Error("tracking failed", "error", err)
	return err
}

// Estimate maps one frame to an EPOG. It applies stabilization when
// enabled and re-measures the iris size when the emitted point is in the
// straight-ahead region.
func (t *Tracker) Estimate(det gaze.Detector) (gaze.Estimate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.estimate(det)
}

func (t *Tracker) estimate(det gaze.Detector) (gaze.Estimate, error) {
	if t.mapper == nil {
		return gaze.Estimate{}, ErrNotCalibrated
	}
	r, ok := gaze.ReadRatio(det)
	if !ok {
		return gaze.Estimate{}, nil
	}
	raw, err := t.mapper.Map(r)
	if err != nil {
		return gaze.Estimate{}, err
	}
	est := gaze.Estimate{Raw: raw, Located: true}
	if t.cfg.Stabilize {
		est.Stable = t.engine.Push(raw)
		est.Stabilized = true
	}
	if t.mapper.Observe(est.Point(), det) {
		t.logger.Debug("iris remeasured", "iris", t.mapper.CurrentIris())
	}
	t.logger.Debug("epog", "raw", raw.String(), "stable", est.Stable.String(), "stabilized", est.Stabilized)
	t.last = est
	return est, nil
}

type estimatorFunc func(gaze.Detector) (gaze.Estimate, error)

func (f estimatorFunc) Estimate(det gaze.Detector) (gaze.Estimate, error) { return f(det) }

// Recalibrate discards the calibration and starts again from the
// instruction screen.
func (t *Tracker) Recalibrate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tester != nil {
		if err := t.tester.Close(); err != nil {
			t.logger.Warn("close test error sink", "error", err)
		}
	}
	t.session.Reset()
	t.mode = ModeCalibrating
	t.mapper = nil
	t.engine = nil
	t.tester = nil
	t.result = nil
	t.summary = nil
	t.last = gaze.Estimate{}
	t.err = nil
	t.logger.Info("recalibrating")
}

// Close ends an accuracy test in progress and closes its error sink.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tester == nil {
		return nil
	}
	return t.tester.Close()
}

// Mode returns the active state machine.
func (t *Tracker) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// Status returns a snapshot of the tracker.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Status{
		Mode:   t.mode,
		Phase:  t.session.Phase(),
		Frames: t.frames,
		Last:   t.last,
	}
	if t.err != nil {
		s.Err = t.err.Error()
	}
	if t.result != nil {
		r := *t.result
		s.Calibration = &r
	}
	if t.tester != nil {
		sum := t.tester.Summary()
		s.Test = &sum
	}
	if t.engine != nil && t.cfg.Stabilize {
		st := t.engine.State()
		s.Stabilizer = &st
	}
	if t.mapper != nil {
		s.CurrentIris = t.mapper.CurrentIris()
	}
	return s
}

// Run steps the tracker for every frame received until frames is closed or
// ctx is done. Sink errors are logged; any other error ends the run.
func Run[D gaze.Detector](ctx context.Context, t *Tracker, frames <-chan D) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-frames:
			if !ok {
				return nil
			}
			if _, err := t.Step(d); err != nil && !errors.Is(err, calibration.ErrSink) {
				return err
			}
		}
	}
}
