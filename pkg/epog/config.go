package epog

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/mapping"
	"github.com/teslashibe/go-gaze/pkg/stabilize"
)

// Config holds every tunable of the tracking pipeline.
type Config struct {
	Stabilize bool `json:"stabilize"` // Emit stabilized points instead of raw ones

	// Calibration
	Grid  calibration.Grid  `json:"grid"`
	Dwell calibration.Dwell `json:"dwell"`

	// Accuracy test
	Test calibration.TestConfig `json:"test"`
	Seed int64                  `json:"seed"` // Test target seed, 0 = clock

	// Estimation
	Stabilizer stabilize.Config `json:"stabilizer"`
	Region     mapping.Region   `json:"region"` // Straight-ahead iris re-measurement area
}

// DefaultConfig returns raw (unstabilized) tracking on a 3x3 grid.
func DefaultConfig() Config {
	return Config{
		Grid:       calibration.DefaultGrid(),
		Dwell:      calibration.DefaultDwell(),
		Test:       calibration.DefaultTestConfig(),
		Stabilizer: stabilize.DefaultConfig(),
		Region:     mapping.DefaultRegion(),
	}
}

// StableConfig returns tracking with two-point cluster stabilization.
func StableConfig() Config {
	cfg := DefaultConfig()
	cfg.Stabilize = true
	return cfg
}

// PursuitConfig returns stabilized tracking that confirms the direction of
// eye movements before following them.
func PursuitConfig() Config {
	cfg := StableConfig()
	cfg.Stabilizer = stabilize.PursuitConfig()
	return cfg
}

// Preset returns a named configuration: "default", "stable" or "pursuit".
func Preset(name string) (Config, error) {
	switch name {
	case "", "default", "raw":
		return DefaultConfig(), nil
	case "stable":
		return StableConfig(), nil
	case "pursuit":
		return PursuitConfig(), nil
	}
	return Config{}, fmt.Errorf("epog: unknown preset %q", name)
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	return errors.Join(
		c.Grid.Validate(),
		c.Dwell.Validate(),
		c.Test.Validate(),
		c.Stabilizer.Validate(),
		c.Region.Validate(),
	)
}
