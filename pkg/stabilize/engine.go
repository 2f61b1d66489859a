// Package stabilize smooths a stream of raw gaze points with two competing
// clusters: the current fixation and a candidate for an eye movement.
package stabilize

import (
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// State is a snapshot of the engine for dashboards and logs.
type State struct {
	Current    []gaze.Point `json:"current"`
	Candidate  []gaze.Point `json:"candidate"`
	Radius     float64      `json:"radius"`
	Promotions int          `json:"promotions"`
	Rejections int          `json:"rejections"`
}

// Engine is the streaming stabilizer. Push is called once per located
// frame; it is not safe for concurrent use.
type Engine struct {
	cfg    Config
	radius float64

	current   *Cluster
	candidate *Cluster

	promotions int
	rejections int
}

// New creates an engine for screen.
func New(cfg Config, screen gaze.Screen) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := screen.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:       cfg,
		radius:    cfg.Radius(screen),
		current:   NewCluster(cfg.Capacity),
		candidate: NewCluster(cfg.Capacity),
	}, nil
}

// Push feeds one raw point and returns the stabilized point.
func (e *Engine) Push(p gaze.Point) gaze.Point {
	// Bootstrap: fill the current cluster without rejection.
	if !e.current.Full() {
		e.current.Push(p)
		return e.current.Centroid()
	}

	if e.candidate.Len() > 0 {
		if e.candidate.Within(p, e.radius) {
			e.candidate.Push(p)
			out := e.candidate.Centroid()
			if !e.candidate.Full() {
				return out
			}
			if e.cfg.ConfirmMovement && !e.consistent() {
				e.candidate.Clear()
				e.rejections++
				return e.current.Centroid()
			}
			e.current.replace(e.candidate)
			e.candidate.Clear()
			e.promotions++
			return out
		}
		e.candidate.Clear()
		e.rejections++
	}

	if e.current.Within(p, e.radius) {
		e.current.Push(p)
	} else {
		e.candidate.Push(p)
	}
	return e.current.Centroid()
}

// consistent reports whether the path through the current fixation and
// then the candidate moves in one direction. Consecutive deltas must have a
// non-negative dot product; up to MaxFlips reversals are tolerated among
// the last SameDirection-1 pairs.
func (e *Engine) consistent() bool {
	seq := make([]gaze.Point, 0, e.current.Len()+e.candidate.Len())
	seq = append(seq, e.current.pts...)
	seq = append(seq, e.candidate.pts...)
	if len(seq) <= e.cfg.SameDirection {
		return false
	}

	flips := 0
	for i := 0; i < e.cfg.SameDirection-1; i++ {
		n := len(seq) - 1 - i
		d1 := seq[n].Sub(seq[n-1])
		d2 := seq[n-1].Sub(seq[n-2])
		if d1.X*d2.X+d1.Y*d2.Y < 0 {
			flips++
			if flips > e.cfg.MaxFlips {
				return false
			}
		}
	}
	return true
}

// Reset empties both clusters; the next points bootstrap again.
func (e *Engine) Reset() {
	e.current.Clear()
	e.candidate.Clear()
}

// Radius returns the acceptance radius in pixels.
func (e *Engine) Radius() float64 {
	return e.radius
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// State returns a snapshot of the clusters and counters.
func (e *Engine) State() State {
	return State{
		Current:    e.current.Points(),
		Candidate:  e.candidate.Points(),
		Radius:     e.radius,
		Promotions: e.promotions,
		Rejections: e.rejections,
	}
}
