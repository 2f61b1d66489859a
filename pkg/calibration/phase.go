package calibration

import "fmt"

// Phase is the state of the calibration or test state machine.
type Phase int

const (
	// PhaseInstruction shows instructions; nothing is sampled.
	PhaseInstruction Phase = iota
	// PhaseFixation shows the point so the user can saccade to it.
	PhaseFixation
	// PhaseSampling records ratio samples (and iris size at the center).
	PhaseSampling
	// PhaseAggregated reduced the point's samples to one ratio.
	PhaseAggregated
	// PhaseExtremesComputed derived the boundary ratios from all points.
	PhaseExtremesComputed
	// PhaseComplete is terminal for calibration.
	PhaseComplete
	// PhaseTesting shows random targets and scores the mapping.
	PhaseTesting
	// PhaseTestComplete means every test point was shown.
	PhaseTestComplete
	// PhaseFailed means calibration hit a structural error and must be redone.
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseInstruction:      "instruction",
	PhaseFixation:         "fixation",
	PhaseSampling:         "sampling",
	PhaseAggregated:       "aggregated",
	PhaseExtremesComputed: "extremes_computed",
	PhaseComplete:         "complete",
	PhaseTesting:          "testing",
	PhaseTestComplete:     "test_complete",
	PhaseFailed:           "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name for JSON status payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name produced by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("calibration: unknown phase %q", text)
}
