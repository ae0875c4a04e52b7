package executor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vulturelab/visavulture/plan"
)

// Setpoint is a snapshot of the values commanded for a step. Only the fields matching
// Kind are meaningful.
type Setpoint struct {
	Kind         plan.StepKind
	Voltage      float64
	Current      float64
	FrequencyHz  float64
	PowerDBm     float64
	ModulationOn bool
}

// String renders the kind-relevant fields only.
func (sp Setpoint) String() string {
	if sp.Kind == plan.PowerSupplyStep {
		return fmt.Sprintf("%.3fV %.3fA", sp.Voltage, sp.Current)
	}
	return fmt.Sprintf("%.1fHz %.2fdBm mod=%v", sp.FrequencyHz, sp.PowerDBm, sp.ModulationOn)
}

// setpointOf extracts the commanded setpoint snapshot from a step.
func setpointOf(step plan.TestStep) Setpoint {
	return Setpoint{
		Kind:         step.Kind,
		Voltage:      step.Voltage,
		Current:      step.Current,
		FrequencyHz:  step.FrequencyHz,
		PowerDBm:     step.PowerDBm,
		ModulationOn: step.ModulationOn,
	}
}

// Sample is a timestamped progress record emitted during a run, consumed live by a
// plotting or table layer.
type Sample struct {
	// RunID identifies the run this sample belongs to.
	RunID uuid.UUID
	// At is the wall-clock time the sample was taken.
	At time.Time
	// PlanTime is the position on the plan timeline: the step's absolute start offset
	// plus the elapsed portion of the step. Pauses do not advance it.
	PlanTime time.Duration
	// StepIndex is the 0-based index of the executing step.
	StepIndex int
	// Setpoint is the snapshot of the values commanded for the executing step.
	Setpoint Setpoint
}

// SampleHandler consumes progress samples. It is invoked synchronously on the run
// goroutine; consumers that need main-thread affinity must re-marshal themselves.
type SampleHandler func(Sample)

// Report summarizes one run. On a fault it carries the partial progress up to the
// failing step.
type Report struct {
	RunID  uuid.UUID
	PlanID uuid.UUID

	// Completed is true when the final step finished normally.
	Completed bool
	// Stopped is true when the run honored a cancellation request. A stopped run is
	// an acknowledged stop, not a failure.
	Stopped bool

	// StepsExecuted counts the steps whose setpoint commands were applied.
	StepsExecuted int
	// SetpointWrites counts the individual instrument commands issued.
	SetpointWrites uint64

	StartedAt time.Time
	Elapsed   time.Duration

	// Samples is the accumulated progress history of the run.
	Samples []Sample
}
