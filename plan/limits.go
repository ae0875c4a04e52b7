package plan

import (
	"fmt"
	"time"
)

// Limits holds soft validation limits for test plan setpoints.
//
// Values outside these limits generate warnings but never reject a plan; a soft limit
// is a sanity bound checked before a setpoint is sent, independent of any
// hardware-enforced limit.
type Limits struct {
	// Power supply bounds.
	VoltageMax float64 // volts
	CurrentMax float64 // amps

	// Signal generator bounds.
	PowerMinDBm    float64
	PowerMaxDBm    float64
	FrequencyMinHz float64
	FrequencyMaxHz float64

	// Common bounds.
	StepDurationMax time.Duration
}

// DefaultLimits returns soft limits sized for typical lab equipment.
func DefaultLimits() Limits {
	return Limits{
		VoltageMax:      100.0,          // above typical lab supply
		CurrentMax:      50.0,           // above typical lab supply
		PowerMinDBm:     -100.0,         // below typical noise floor
		PowerMaxDBm:     30.0,           // above typical equipment limits
		FrequencyMinHz:  1.0,            // unusually low frequency
		FrequencyMaxHz:  50e9,           // 50 GHz, above typical equipment
		StepDurationMax: 24 * time.Hour, // unusually long step
	}
}

// Check returns a warning message for every plan setpoint outside the soft limits.
// An empty result means every setpoint is within bounds.
func (l Limits) Check(p *TestPlan) []string {
	var warnings []string

	for i, step := range p.Steps() {
		num := i + 1

		if step.Duration > l.StepDurationMax {
			warnings = append(warnings, fmt.Sprintf("step %d: duration %s exceeds soft limit %s", num, step.Duration, l.StepDurationMax))
		}

		switch step.Kind {
		case PowerSupplyStep:
			if step.Voltage > l.VoltageMax {
				warnings = append(warnings, fmt.Sprintf("step %d: voltage %.3f V exceeds soft limit %.3f V", num, step.Voltage, l.VoltageMax))
			}
			if step.Current > l.CurrentMax {
				warnings = append(warnings, fmt.Sprintf("step %d: current %.3f A exceeds soft limit %.3f A", num, step.Current, l.CurrentMax))
			}
		case SignalGeneratorStep:
			if step.PowerDBm < l.PowerMinDBm || step.PowerDBm > l.PowerMaxDBm {
				warnings = append(warnings, fmt.Sprintf("step %d: power %.2f dBm outside soft limits [%.2f, %.2f]", num, step.PowerDBm, l.PowerMinDBm, l.PowerMaxDBm))
			}
			if step.FrequencyHz < l.FrequencyMinHz || step.FrequencyHz > l.FrequencyMaxHz {
				warnings = append(warnings, fmt.Sprintf("step %d: frequency %.1f Hz outside soft limits [%.1f, %.1f]", num, step.FrequencyHz, l.FrequencyMinHz, l.FrequencyMaxHz))
			}
		}
	}

	return warnings
}
