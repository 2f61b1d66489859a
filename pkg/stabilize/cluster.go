package stabilize

import (
	"math"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Cluster is a bounded FIFO of screen points. Pushing onto a full cluster
// evicts the oldest point.
type Cluster struct {
	pts []gaze.Point
	cap int
}

// NewCluster returns an empty cluster holding at most capacity points.
func NewCluster(capacity int) *Cluster {
	if capacity < 1 {
		capacity = 1
	}
	return &Cluster{pts: make([]gaze.Point, 0, capacity), cap: capacity}
}

// Push appends p, evicting the oldest point when full.
func (c *Cluster) Push(p gaze.Point) {
	if len(c.pts) == c.cap {
		copy(c.pts, c.pts[1:])
		c.pts = c.pts[:len(c.pts)-1]
	}
	c.pts = append(c.pts, p)
}

// Len returns the number of points held.
func (c *Cluster) Len() int { return len(c.pts) }

// Cap returns the capacity.
func (c *Cluster) Cap() int { return c.cap }

// Full reports whether the cluster holds capacity points.
func (c *Cluster) Full() bool { return len(c.pts) == c.cap }

// Clear empties the cluster.
func (c *Cluster) Clear() { c.pts = c.pts[:0] }

// Centroid returns the rounded mean of the points, or the zero point for
// an empty cluster.
func (c *Cluster) Centroid() gaze.Point {
	if len(c.pts) == 0 {
		return gaze.Point{}
	}
	var sx, sy int
	for _, p := range c.pts {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(c.pts))
	return gaze.Pt(int(math.Round(float64(sx)/n)), int(math.Round(float64(sy)/n)))
}

// Within reports whether p is within r of every member. It is always true
// for an empty cluster.
func (c *Cluster) Within(p gaze.Point, r float64) bool {
	for _, q := range c.pts {
		if q.Distance(p) > r {
			return false
		}
	}
	return true
}

// Points returns a copy of the members, oldest first.
func (c *Cluster) Points() []gaze.Point {
	return append([]gaze.Point(nil), c.pts...)
}

// Last returns the newest member.
func (c *Cluster) Last() (gaze.Point, bool) {
	if len(c.pts) == 0 {
		return gaze.Point{}, false
	}
	return c.pts[len(c.pts)-1], true
}

// replace copies other's points into c, keeping c's capacity.
func (c *Cluster) replace(other *Cluster) {
	c.Clear()
	for _, p := range other.pts {
		c.Push(p)
	}
}
