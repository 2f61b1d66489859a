package stabilize

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// RadiusBase selects the screen dimension the acceptance radius scales with.
type RadiusBase int

const (
	RadiusWidth RadiusBase = iota
	RadiusDiagonal
)

func (b RadiusBase) String() string {
	switch b {
	case RadiusWidth:
		return "width"
	case RadiusDiagonal:
		return "diagonal"
	}
	return fmt.Sprintf("RadiusBase(%d)", int(b))
}

// MarshalText implements encoding.TextMarshaler.
func (b RadiusBase) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *RadiusBase) UnmarshalText(text []byte) error {
	v, err := ParseRadiusBase(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// ParseRadiusBase parses "width" or "diagonal".
func ParseRadiusBase(s string) (RadiusBase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "width", "":
		return RadiusWidth, nil
	case "diagonal":
		return RadiusDiagonal, nil
	}
	return 0, fmt.Errorf("stabilize: unknown radius base %q", s)
}

// Config holds the tunable parameters of the stabilization engine.
type Config struct {
	// Clusters
	Capacity       int        `json:"capacity"`        // k: promotion size and cluster bound
	RadiusFraction float64    `json:"radius_fraction"` // Acceptance radius as a fraction of RadiusBase
	RadiusBase     RadiusBase `json:"radius_base"`

	// Movement confirmation
	ConfirmMovement bool `json:"confirm_movement"`
	SameDirection   int  `json:"same_direction"` // Consecutive deltas that must agree
	MaxFlips        int  `json:"max_flips"`      // Tolerated direction reversals
}

// DefaultConfig returns two-point clusters and a radius of 30% of the
// screen width.
func DefaultConfig() Config {
	return Config{
		Capacity:       2,
		RadiusFraction: 0.3,
		RadiusBase:     RadiusWidth,
		SameDirection:  2,
	}
}

// SmoothConfig returns large clusters for steady fixations at the cost of
// slower response to saccades.
func SmoothConfig() Config {
	cfg := DefaultConfig()
	cfg.Capacity = 20
	return cfg
}

// PursuitConfig enables movement confirmation so that a candidate cluster
// is only promoted when it moves in a consistent direction.
func PursuitConfig() Config {
	cfg := DefaultConfig()
	cfg.Capacity = 3
	cfg.ConfirmMovement = true
	cfg.SameDirection = 3
	cfg.MaxFlips = 1
	return cfg
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("stabilize: capacity must be >= 1, got %d", c.Capacity)
	}
	if !(c.RadiusFraction > 0) {
		return fmt.Errorf("stabilize: radius fraction must be > 0, got %v", c.RadiusFraction)
	}
	if c.RadiusBase != RadiusWidth && c.RadiusBase != RadiusDiagonal {
		return fmt.Errorf("stabilize: invalid radius base %v", c.RadiusBase)
	}
	if c.ConfirmMovement {
		if c.SameDirection < 2 {
			return fmt.Errorf("stabilize: same direction must be >= 2, got %d", c.SameDirection)
		}
		// The checked path is both clusters, 2k points.
		if c.SameDirection >= 2*c.Capacity {
			return fmt.Errorf("stabilize: same direction %d needs capacity > %d, got %d",
				c.SameDirection, c.SameDirection/2, c.Capacity)
		}
		if c.MaxFlips < 0 {
			return fmt.Errorf("stabilize: max flips must be >= 0, got %d", c.MaxFlips)
		}
	}
	return nil
}

// Radius returns the acceptance radius in pixels for screen.
func (c Config) Radius(screen gaze.Screen) float64 {
	if c.RadiusBase == RadiusDiagonal {
		return c.RadiusFraction * screen.Diagonal()
	}
	return c.RadiusFraction * float64(screen.Width)
}
