package plan

import "errors"

var (
	// ErrEmptyPlan indicates that a test plan has no steps.
	ErrEmptyPlan = errors.New("test plan must have at least one step")

	// ErrMixedStepKinds indicates that a test plan contains steps of a kind other than
	// the one declared by the plan metadata.
	ErrMixedStepKinds = errors.New("test plan steps must all match the plan kind")

	// ErrInvalidStepKind indicates a step kind outside the known set.
	ErrInvalidStepKind = errors.New("invalid step kind")

	// ErrNonPositiveDuration indicates a step duration that is zero or negative.
	ErrNonPositiveDuration = errors.New("step duration must be greater than zero")

	// ErrModulationMissing indicates that a step enables modulation but the plan has
	// no modulation configuration.
	ErrModulationMissing = errors.New("step enables modulation but plan has no modulation config")

	// ErrInvalidModulation indicates an out-of-range modulation configuration value.
	ErrInvalidModulation = errors.New("invalid modulation config")
)
