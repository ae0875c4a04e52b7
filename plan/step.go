package plan

import (
	"fmt"
	"time"
)

// StepKind identifies which instrument a test step drives.
//
// TestStep is a tagged variant over the step kinds; the executor dispatches on Kind
// with an exhaustive switch rather than virtual dispatch.
type StepKind uint8

const (
	// PowerSupplyStep drives a programmable power supply (voltage/current setpoints).
	PowerSupplyStep StepKind = iota + 1
	// SignalGeneratorStep drives a signal generator (frequency/power setpoints,
	// optional modulation).
	SignalGeneratorStep
)

// String returns the string representation of the step kind.
func (k StepKind) String() string {
	switch k {
	case PowerSupplyStep:
		return "power-supply"
	case SignalGeneratorStep:
		return "signal-generator"
	default:
		return "unknown"
	}
}

// IsValid reports whether the kind is one of the known step kinds.
func (k StepKind) IsValid() bool {
	return k == PowerSupplyStep || k == SignalGeneratorStep
}

// TestStep is a single timed step of a test plan.
//
// Duration and Description are common to all kinds. The remaining fields are only
// meaningful for the kind indicated by the Kind tag; fields of the other kind are
// ignored.
type TestStep struct {
	Kind        StepKind
	Duration    time.Duration
	Description string

	// Power supply setpoints.
	Voltage float64 // volts
	Current float64 // amps

	// Signal generator setpoints.
	FrequencyHz  float64
	PowerDBm     float64
	ModulationOn bool
}

// PowerStep builds a power supply step.
func PowerStep(duration time.Duration, voltage, current float64) TestStep {
	return TestStep{
		Kind:     PowerSupplyStep,
		Duration: duration,
		Voltage:  voltage,
		Current:  current,
	}
}

// SignalStep builds a signal generator step.
func SignalStep(duration time.Duration, frequencyHz, powerDBm float64, modulationOn bool) TestStep {
	return TestStep{
		Kind:         SignalGeneratorStep,
		Duration:     duration,
		FrequencyHz:  frequencyHz,
		PowerDBm:     powerDBm,
		ModulationOn: modulationOn,
	}
}

// String returns a short human-readable description of the step setpoints.
func (s TestStep) String() string {
	switch s.Kind {
	case PowerSupplyStep:
		return fmt.Sprintf("power-supply step %.3fV/%.3fA for %s", s.Voltage, s.Current, s.Duration)
	case SignalGeneratorStep:
		return fmt.Sprintf("signal-generator step %.1fHz/%.2fdBm for %s", s.FrequencyHz, s.PowerDBm, s.Duration)
	default:
		return "unknown step"
	}
}

// validate checks the structural invariants of a single step against the plan kind.
func (s TestStep) validate(planKind StepKind) []error {
	var errs []error

	if !s.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidStepKind, s.Kind))
	} else if s.Kind != planKind {
		errs = append(errs, fmt.Errorf("%w: plan is %s, step is %s", ErrMixedStepKinds, planKind, s.Kind))
	}

	if s.Duration <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %s", ErrNonPositiveDuration, s.Duration))
	}

	return errs
}
