package plan

import "fmt"

// ModulationType identifies the kind of modulation applied to modulation-enabled
// signal generator steps.
type ModulationType uint8

const (
	// ModulationAM applies amplitude modulation.
	ModulationAM ModulationType = iota + 1
	// ModulationFM applies frequency modulation.
	ModulationFM
)

// String returns the string representation of the modulation type.
func (t ModulationType) String() string {
	switch t {
	case ModulationAM:
		return "AM"
	case ModulationFM:
		return "FM"
	default:
		return "unknown"
	}
}

// ModulationConfig is the plan-level modulation configuration. It applies uniformly to
// every step with ModulationOn set.
//
// DepthPercent is only meaningful for AM; DeviationHz only for FM. FrequencyHz is the
// internal modulating signal frequency for both types.
type ModulationConfig struct {
	Type         ModulationType
	DepthPercent float64 // AM modulation depth, 0-100
	DeviationHz  float64 // FM frequency deviation
	FrequencyHz  float64 // internal modulating signal frequency
}

// AMConfig builds an AM modulation configuration.
func AMConfig(depthPercent, frequencyHz float64) *ModulationConfig {
	return &ModulationConfig{
		Type:         ModulationAM,
		DepthPercent: depthPercent,
		FrequencyHz:  frequencyHz,
	}
}

// FMConfig builds an FM modulation configuration.
func FMConfig(deviationHz, frequencyHz float64) *ModulationConfig {
	return &ModulationConfig{
		Type:         ModulationFM,
		DeviationHz:  deviationHz,
		FrequencyHz:  frequencyHz,
	}
}

// validate checks the modulation configuration values.
func (m *ModulationConfig) validate() []error {
	var errs []error

	switch m.Type {
	case ModulationAM:
		if m.DepthPercent < 0 || m.DepthPercent > 100 {
			errs = append(errs, fmt.Errorf("%w: AM depth must be in [0, 100], got %.2f", ErrInvalidModulation, m.DepthPercent))
		}
	case ModulationFM:
		if m.DeviationHz <= 0 {
			errs = append(errs, fmt.Errorf("%w: FM deviation must be > 0, got %.1f", ErrInvalidModulation, m.DeviationHz))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown modulation type %d", ErrInvalidModulation, m.Type))
	}

	if m.FrequencyHz <= 0 {
		errs = append(errs, fmt.Errorf("%w: modulating frequency must be > 0, got %.1f", ErrInvalidModulation, m.FrequencyHz))
	}

	return errs
}
