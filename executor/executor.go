// Package executor drives one run of a test plan against an instrument capability:
// issuing each step's setpoint commands in order, pacing the run in real time,
// emitting progress samples, and honoring cooperative pause and cancellation flags at
// well-defined checkpoints.
//
// The executor never interrupts a step's setpoint command sequence once it has
// started; pause and cancellation are observed at step boundaries and between pacing
// wait chunks only.
package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vulturelab/visavulture/instrument"
	"github.com/vulturelab/visavulture/internal/pool"
	"github.com/vulturelab/visavulture/logger"
	"github.com/vulturelab/visavulture/plan"
)

// Executor executes test plans. It is stateless across runs; all per-run state lives
// in an executionContext created for each Run call.
type Executor struct {
	logger           logger.Logger
	pausePoll        time.Duration
	sampleEvery      time.Duration
	safeStateOnFault bool
}

// New creates an Executor.
//
// pausePoll is the pause re-check interval and the chunk size of pacing waits;
// sampleEvery is the progress sample emission interval. When safeStateOnFault is true
// the executor commands the instrument output off after a step-level command failure,
// before the fault is reported.
func New(pausePoll, sampleEvery time.Duration, safeStateOnFault bool, l logger.Logger) *Executor {
	if l == nil {
		l = logger.GetLogger()
	}
	if pausePoll <= 0 {
		pausePoll = 100 * time.Millisecond
	}
	if sampleEvery <= 0 {
		sampleEvery = time.Second
	}

	return &Executor{
		logger:           l,
		pausePoll:        pausePoll,
		sampleEvery:      sampleEvery,
		safeStateOnFault: safeStateOnFault,
	}
}

// Run executes the plan against the instrument and blocks until the run completes,
// stops, or faults. It must be called on a background goroutine.
//
// The paused flag is observed between steps and between pacing wait chunks; ctx
// cancellation is the cooperative stop request. A stopped run returns a report with
// Stopped set and a nil error: the report is the cancellation acknowledgement. A fault
// returns the partial report together with the error.
func (e *Executor) Run(ctx context.Context, p *plan.TestPlan, inst instrument.Instrument, paused *atomic.Bool, emit SampleHandler) (*Report, error) {
	ec := newExecutionContext(p, e.sampleEvery)

	log := e.logger.With("run_id", ec.runID.String(), "plan", p.Name())
	log.Info("run started", "steps", p.StepCount(), "total_duration", p.TotalDuration())

	dev, err := newDevices(p.Kind(), inst, e.logger)
	if err != nil {
		return ec.report(false, false, 0), err
	}

	if p.Kind() == plan.SignalGeneratorStep && p.Modulation() != nil {
		if err := dev.sg.ConfigureModulation(p.Modulation()); err != nil {
			return e.fault(ec, dev, log, 0, err)
		}
		ec.setpointWrites += 2
	}

	stepsExecuted := 0
	stopped := false

	for i, step := range p.Steps() {
		ec.stepIndex = i
		ec.elapsedInStep = 0

		// Pause and cancellation checkpoints; never inside a setpoint sequence.
		if err := e.waitWhilePaused(ctx, paused); err != nil {
			stopped = true
			break
		}

		log.Info("executing step", "step", i+1, "of", p.StepCount(), "setpoint", step.String())

		if err := e.applyStep(ec, dev, step); err != nil {
			return e.fault(ec, dev, log, stepsExecuted, err)
		}
		if i == 0 {
			if err := dev.enableOutput(); err != nil {
				return e.fault(ec, dev, log, stepsExecuted, err)
			}
			ec.setpointWrites++
		}
		stepsExecuted++

		e.emitSample(ec, emit)

		if e.pace(ctx, ec, step, paused, emit) {
			stopped = true
			break
		}
	}

	if err := dev.disableOutput(); err != nil {
		if !stopped {
			return e.fault(ec, dev, log, stepsExecuted, err)
		}
		log.Warn("output disable failed after stop", "error", err)
	} else {
		ec.setpointWrites++
	}

	if stopped {
		log.Info("run stopped", "steps_executed", stepsExecuted)
	} else {
		log.Info("run completed", "steps_executed", stepsExecuted, "elapsed", time.Since(ec.startedAt))
	}

	return ec.report(!stopped, stopped, stepsExecuted), nil
}

// applyStep issues the step's setpoint command sequence. The sequence, once started,
// always runs to completion or first error.
func (e *Executor) applyStep(ec *executionContext, dev *devices, step plan.TestStep) error {
	switch step.Kind {
	case plan.PowerSupplyStep:
		if err := dev.ps.SetVoltage(step.Voltage); err != nil {
			return err
		}
		ec.setpointWrites++
		if err := dev.ps.SetCurrent(step.Current); err != nil {
			return err
		}
		ec.setpointWrites++
	case plan.SignalGeneratorStep:
		if err := dev.sg.SetFrequency(step.FrequencyHz); err != nil {
			return err
		}
		ec.setpointWrites++
		if err := dev.sg.SetPower(step.PowerDBm); err != nil {
			return err
		}
		ec.setpointWrites++
		if mod := ec.plan.Modulation(); mod != nil {
			if err := dev.sg.SetModulationState(mod, step.ModulationOn); err != nil {
				return err
			}
			ec.setpointWrites++
		}
	default:
		return fmt.Errorf("%w: %d", plan.ErrInvalidStepKind, step.Kind)
	}

	return nil
}

// pace waits out the step duration in chunks, emitting progress samples at the
// sampling interval and honoring pause and cancellation between chunks. It returns
// true when the run was cancelled.
func (e *Executor) pace(ctx context.Context, ec *executionContext, step plan.TestStep, paused *atomic.Bool, emit SampleHandler) bool {
	remaining := step.Duration
	var sinceSample time.Duration

	for remaining > 0 {
		if err := e.waitWhilePaused(ctx, paused); err != nil {
			return true
		}

		chunk := e.pausePoll
		if chunk > remaining {
			chunk = remaining
		}

		t := pool.GetTimer(chunk)
		select {
		case <-ctx.Done():
			pool.PutTimer(t)
			return true
		case <-t.C:
		}
		pool.PutTimer(t)

		remaining -= chunk
		ec.elapsedInStep += chunk
		sinceSample += chunk

		if sinceSample >= e.sampleEvery && remaining > 0 {
			sinceSample = 0
			e.emitSample(ec, emit)
		}
	}

	return false
}

// waitWhilePaused blocks cooperatively while the pause flag is set, re-checking at the
// pause poll interval. It returns the context error once the run is cancelled, whether
// paused or not; the remaining step time is preserved across the pause.
func (e *Executor) waitWhilePaused(ctx context.Context, paused *atomic.Bool) error {
	for paused != nil && paused.Load() {
		t := pool.GetTimer(e.pausePoll)
		select {
		case <-ctx.Done():
			pool.PutTimer(t)
			return ctx.Err()
		case <-t.C:
		}
		pool.PutTimer(t)
	}

	return ctx.Err()
}

// emitSample records a progress sample and hands it to the handler, if any.
func (e *Executor) emitSample(ec *executionContext, emit SampleHandler) {
	s := ec.sample()
	if emit != nil {
		emit(s)
	}
}

// fault logs the abort, optionally commands the safe state, and returns the partial
// report with the error. Remaining steps are not executed and no retry is performed.
func (e *Executor) fault(ec *executionContext, dev *devices, log logger.Logger, stepsExecuted int, err error) (*Report, error) {
	log.Error("run aborted", "step", ec.stepIndex+1, "error", err)

	if e.safeStateOnFault {
		if derr := dev.disableOutput(); derr != nil {
			log.Warn("safe state command failed", "error", derr)
		}
	}

	return ec.report(false, false, stepsExecuted), err
}

// devices holds the kind-specific instrument wrapper for a run. Exactly one field is
// set, matching the plan kind.
type devices struct {
	ps *instrument.PowerSupply
	sg *instrument.SignalGenerator
}

func newDevices(kind plan.StepKind, inst instrument.Instrument, l logger.Logger) (*devices, error) {
	switch kind {
	case plan.PowerSupplyStep:
		return &devices{ps: instrument.NewPowerSupply("power-supply", inst, l)}, nil
	case plan.SignalGeneratorStep:
		return &devices{sg: instrument.NewSignalGenerator("signal-generator", inst, l)}, nil
	default:
		return nil, fmt.Errorf("%w: %d", plan.ErrInvalidStepKind, kind)
	}
}

func (d *devices) enableOutput() error {
	if d.ps != nil {
		return d.ps.EnableOutput()
	}
	return d.sg.EnableOutput()
}

func (d *devices) disableOutput() error {
	if d.ps != nil {
		return d.ps.DisableOutput()
	}
	return d.sg.DisableOutput()
}
