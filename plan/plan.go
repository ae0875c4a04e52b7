// Package plan defines the test plan data model: an ordered, immutable sequence of
// timed instrument setpoint steps plus plan-level metadata.
//
// Plans arrive pre-validated at the column level by a plan source (file parsing is out
// of scope); this package re-checks only the structural invariants the execution core
// depends on: non-empty, homogeneous step kind, positive durations, and a modulation
// configuration whenever a step enables modulation.
package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TestPlan is an ordered, immutable sequence of TestStep records plus plan-level
// metadata. Construct with NewPlan; the step slice is copied and never mutated
// afterwards.
type TestPlan struct {
	id          uuid.UUID
	name        string
	kind        StepKind
	description string
	steps       []TestStep
	modulation  *ModulationConfig
}

// PlanOption customizes a TestPlan during construction.
type PlanOption func(*TestPlan)

// WithDescription sets the plan description.
func WithDescription(desc string) PlanOption {
	return func(p *TestPlan) { p.description = desc }
}

// WithModulation sets the plan-level modulation configuration.
func WithModulation(cfg *ModulationConfig) PlanOption {
	return func(p *TestPlan) { p.modulation = cfg }
}

// NewPlan creates a TestPlan with the given name, declared step kind, and steps.
//
// The steps slice is copied; later mutation of the caller's slice does not affect the
// plan. It returns an error joining every structural violation found.
func NewPlan(name string, kind StepKind, steps []TestStep, opts ...PlanOption) (*TestPlan, error) {
	p := &TestPlan{
		id:    uuid.New(),
		name:  name,
		kind:  kind,
		steps: make([]TestStep, len(steps)),
	}
	copy(p.steps, steps)

	for _, opt := range opts {
		opt(p)
	}

	if errs := p.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid test plan %q: %w", name, errors.Join(errs...))
	}

	return p, nil
}

// ID returns the unique identity assigned to this plan at construction.
func (p *TestPlan) ID() uuid.UUID { return p.id }

// Name returns the plan name.
func (p *TestPlan) Name() string { return p.name }

// Kind returns the declared instrument kind of the plan.
func (p *TestPlan) Kind() StepKind { return p.kind }

// Description returns the plan description.
func (p *TestPlan) Description() string { return p.description }

// Modulation returns the plan-level modulation configuration, or nil if the plan has
// none.
func (p *TestPlan) Modulation() *ModulationConfig { return p.modulation }

// StepCount returns the number of steps in the plan.
func (p *TestPlan) StepCount() int { return len(p.steps) }

// Step returns the step at index i (0-based).
func (p *TestPlan) Step(i int) TestStep { return p.steps[i] }

// Steps returns a copy of the plan steps.
func (p *TestPlan) Steps() []TestStep {
	steps := make([]TestStep, len(p.steps))
	copy(steps, p.steps)
	return steps
}

// StartOffsets returns the absolute start time of every step, relative to the start of
// the run. The start of step i is the cumulative sum of the durations of steps 0..i-1.
//
// The offsets are derived on every call, never cached, so they are always consistent
// with the current plan contents.
func (p *TestPlan) StartOffsets() []time.Duration {
	offsets := make([]time.Duration, len(p.steps))
	var acc time.Duration
	for i, step := range p.steps {
		offsets[i] = acc
		acc += step.Duration
	}
	return offsets
}

// TotalDuration returns the sum of all step durations.
func (p *TestPlan) TotalDuration() time.Duration {
	var total time.Duration
	for _, step := range p.steps {
		total += step.Duration
	}
	return total
}

// Validate checks the structural invariants of the plan and returns every violation
// found. It returns nil for a valid plan.
func (p *TestPlan) Validate() []error {
	var errs []error

	if !p.kind.IsValid() {
		errs = append(errs, fmt.Errorf("%w: plan kind %d", ErrInvalidStepKind, p.kind))
	}

	if len(p.steps) == 0 {
		errs = append(errs, ErrEmptyPlan)
		return errs
	}

	modulationUsed := false
	for i, step := range p.steps {
		for _, err := range step.validate(p.kind) {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
		if step.ModulationOn && step.Kind == SignalGeneratorStep {
			modulationUsed = true
		}
	}

	if modulationUsed && p.modulation == nil {
		errs = append(errs, ErrModulationMissing)
	}
	if p.modulation != nil {
		errs = append(errs, p.modulation.validate()...)
	}

	return errs
}

// String returns a short human-readable summary of the plan.
func (p *TestPlan) String() string {
	return fmt.Sprintf("TestPlan(%q, %s, %d steps, %s)", p.name, p.kind, len(p.steps), p.TotalDuration())
}
