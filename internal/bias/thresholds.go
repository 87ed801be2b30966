package bias

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Thresholds tunes the real-time detectors. Zero values are invalid; use
// DefaultThresholds as the baseline and override selectively.
type Thresholds struct {
	// MinInteractions is the minimum number of logged turns before any
	// real-time detector fires.
	MinInteractions int `yaml:"minInteractions"`

	// Anchoring: the warning fires when more than AnchorRatio of the last
	// AnchorWindow recognized turns share one intent category.
	AnchorWindow int     `yaml:"anchorWindow"`
	AnchorRatio  float64 `yaml:"anchorRatio"`

	// Confirmation: the warning fires when the last ConfirmWindow turns
	// contain at least ConfirmMinConfirmatory turns touching supporting
	// evidence and none touching refuting evidence.
	ConfirmWindow          int `yaml:"confirmWindow"`
	ConfirmMinConfirmatory int `yaml:"confirmMinConfirmatory"`

	// Premature closure: an assessment attempt warns when fewer than
	// ClosureMinInfoTurns of the last ClosureWindow turns gathered
	// information.
	ClosureWindow       int `yaml:"closureWindow"`
	ClosureMinInfoTurns int `yaml:"closureMinInfoTurns"`
}

// DefaultThresholds returns the tuning used in production.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinInteractions:        3,
		AnchorWindow:           5,
		AnchorRatio:            0.7,
		ConfirmWindow:          7,
		ConfirmMinConfirmatory: 3,
		ClosureWindow:          10,
		ClosureMinInfoTurns:    5,
	}
}

// LoadThresholds reads a YAML tuning file over the defaults. Fields absent
// from the file keep their default values.
func LoadThresholds(path string) (Thresholds, error) {
	th := DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return th, fmt.Errorf("bias: read tuning file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return DefaultThresholds(), fmt.Errorf("bias: parse tuning file %s: %w", path, err)
	}
	if err := th.validate(); err != nil {
		return DefaultThresholds(), err
	}
	return th, nil
}

func (t Thresholds) validate() error {
	if t.MinInteractions < 1 || t.AnchorWindow < 1 || t.ConfirmWindow < 1 || t.ClosureWindow < 1 {
		return fmt.Errorf("bias: window sizes must be positive")
	}
	if t.AnchorRatio <= 0 || t.AnchorRatio > 1 {
		return fmt.Errorf("bias: anchorRatio must be in (0, 1]")
	}
	if t.ConfirmMinConfirmatory < 1 || t.ClosureMinInfoTurns < 1 {
		return fmt.Errorf("bias: minimum turn counts must be positive")
	}
	return nil
}
