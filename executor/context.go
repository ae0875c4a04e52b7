package executor

import (
	"time"

	"github.com/google/uuid"

	"github.com/vulturelab/visavulture/internal/queue"
	"github.com/vulturelab/visavulture/plan"
)

// executionContext is the mutable per-run state, owned exclusively by the executor for
// the lifetime of one run. It is created on run start and discarded when the run
// completes, aborts, or stops.
type executionContext struct {
	runID     uuid.UUID
	plan      *plan.TestPlan
	offsets   []time.Duration
	startedAt time.Time

	stepIndex     int
	elapsedInStep time.Duration

	setpointWrites uint64

	// samples is only ever touched by the run goroutine, so the unsynchronized
	// slice-backed queue is sufficient.
	samples queue.Queue[Sample]
}

func newExecutionContext(p *plan.TestPlan, sampleEvery time.Duration) *executionContext {
	// One sample per step plus one per sampling interval over the plan.
	prealloc := p.StepCount() + int(p.TotalDuration()/sampleEvery)

	return &executionContext{
		runID:     uuid.New(),
		plan:      p,
		offsets:   p.StartOffsets(),
		startedAt: time.Now(),
		samples:   queue.NewSliceQueue[Sample](prealloc),
	}
}

// planTime returns the current position on the plan timeline.
func (ec *executionContext) planTime() time.Duration {
	return ec.offsets[ec.stepIndex] + ec.elapsedInStep
}

// sample records and returns a progress sample for the executing step.
func (ec *executionContext) sample() Sample {
	s := Sample{
		RunID:     ec.runID,
		At:        time.Now(),
		PlanTime:  ec.planTime(),
		StepIndex: ec.stepIndex,
		Setpoint:  setpointOf(ec.plan.Step(ec.stepIndex)),
	}
	ec.samples.Enqueue(s)

	return s
}

// report builds the run report from the context's accumulated state, draining the
// sample history in emission order.
func (ec *executionContext) report(completed, stopped bool, stepsExecuted int) *Report {
	samples := make([]Sample, 0, ec.samples.Length())
	for {
		s, ok := ec.samples.Dequeue()
		if !ok {
			break
		}
		samples = append(samples, s)
	}

	return &Report{
		RunID:          ec.runID,
		PlanID:         ec.plan.ID(),
		Completed:      completed,
		Stopped:        stopped,
		StepsExecuted:  stepsExecuted,
		SetpointWrites: ec.setpointWrites,
		StartedAt:      ec.startedAt,
		Elapsed:        time.Since(ec.startedAt),
		Samples:        samples,
	}
}
