package equipment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vulturelab/visavulture/executor"
	"github.com/vulturelab/visavulture/instrument"
	"github.com/vulturelab/visavulture/logger"
	"github.com/vulturelab/visavulture/plan"
	"github.com/vulturelab/visavulture/runner"
)

// ProgressHandler receives progress samples emitted while a plan runs. Handlers are
// invoked synchronously on the run goroutine and must not block.
type ProgressHandler func(executor.Sample)

// Coordinator owns one instrument and serializes the operations against it: connect,
// disconnect, plan loading, and run control. It enforces the equipment state machine
// on every operation and rejects a second exclusive operation while one is in flight.
//
// Connect, Disconnect and Run are asynchronous: they validate, transition, and hand
// the work to the task runner, returning the task ID. The outcome surfaces through
// the state change handlers and through Drain. Pause, Resume, Stop and ResetAck are
// control signals and return synchronously.
//
// All methods are safe for concurrent use.
type Coordinator struct {
	cfg    *Config
	logger logger.Logger

	sm       *StateMachine
	taskMgr  *runner.Runner
	executor *executor.Executor
	inst     instrument.Instrument

	mu         sync.Mutex
	testPlan   *plan.TestPlan
	identity   string
	lastReport *executor.Report
	runTaskID  runner.TaskID
	progress   []ProgressHandler

	busy    atomic.Bool
	paused  atomic.Bool
	metrics Metrics
}

// NewCoordinator creates a Coordinator for the instrument. A nil cfg gets the
// defaults. The context bounds the lifetime of all background tasks; cancelling it
// aborts any in-flight work.
func NewCoordinator(ctx context.Context, inst instrument.Instrument, cfg *Config) (*Coordinator, error) {
	if inst == nil {
		return nil, fmt.Errorf("instrument is required")
	}
	if cfg == nil {
		var err error
		cfg, err = NewConfig()
		if err != nil {
			return nil, err
		}
	}

	l := cfg.Logger()

	return &Coordinator{
		cfg:      cfg,
		logger:   l,
		sm:       NewStateMachine(l),
		taskMgr:  runner.New(ctx, cfg.MaxWorkers(), l),
		executor: executor.New(cfg.PausePollInterval(), cfg.SampleInterval(), cfg.SafeStateOnFault(), l),
		inst:     inst,
	}, nil
}

// State returns the current equipment state.
func (c *Coordinator) State() State {
	return c.sm.State()
}

// OnStateChange registers handlers invoked synchronously on every state transition.
func (c *Coordinator) OnStateChange(handlers ...ChangeHandler) {
	c.sm.OnChange(handlers...)
}

// OnProgress registers handlers for run progress samples.
func (c *Coordinator) OnProgress(handlers ...ProgressHandler) {
	c.mu.Lock()
	c.progress = append(c.progress, handlers...)
	c.mu.Unlock()
}

// Connect establishes the instrument session at the given address and queries its
// identity. Legal from UNKNOWN and ERROR recovery paths start at UNKNOWN; connecting
// while already IDLE re-validates the session without a state transition.
func (c *Coordinator) Connect(address string) (runner.TaskID, error) {
	st := c.sm.State()
	if st != UnknownState && st != IdleState {
		return 0, fmt.Errorf("%w: connect from %s", ErrInvalidState, st)
	}
	if !c.busy.CompareAndSwap(false, true) {
		return 0, ErrOperationInProgress
	}

	timeout := c.cfg.ConnectTimeout()

	id, err := c.taskMgr.Submit("connect", func(ctx context.Context) (any, error) {
		defer c.busy.Store(false)

		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := c.inst.Connect(cctx, address); err != nil {
			c.logger.Error("connect failed", "address", address, "error", err)
			if c.sm.State() == UnknownState {
				_, _ = c.sm.Transition(ConnectFailEvent, err)
			} else {
				_, _ = c.sm.Transition(FaultEvent, err)
			}
			return nil, err
		}

		idn, err := instrument.Identify(c.inst)
		if err != nil {
			c.logger.Warn("identification query failed", "error", err)
		}

		c.mu.Lock()
		c.identity = idn
		c.mu.Unlock()

		c.metrics.incConnect()
		c.logger.Info("instrument connected", "address", address, "identity", idn)

		if c.sm.State() == UnknownState {
			_, _ = c.sm.Transition(ConnectOKEvent, nil)
		}

		return idn, nil
	})
	if err != nil {
		c.busy.Store(false)
		return 0, err
	}

	return id, nil
}

// Disconnect tears down the instrument session. Legal from IDLE and ERROR; the
// equipment returns to UNKNOWN even when the teardown itself reports an error.
func (c *Coordinator) Disconnect() (runner.TaskID, error) {
	st := c.sm.State()
	if !st.IsIdle() && !st.IsError() {
		return 0, fmt.Errorf("%w: disconnect from %s", ErrInvalidState, st)
	}
	if !c.busy.CompareAndSwap(false, true) {
		return 0, ErrOperationInProgress
	}

	id, err := c.taskMgr.Submit("disconnect", func(ctx context.Context) (any, error) {
		defer c.busy.Store(false)

		err := c.inst.Disconnect()
		if err != nil {
			c.logger.Warn("disconnect reported error", "error", err)
		}

		c.mu.Lock()
		c.identity = ""
		c.mu.Unlock()

		c.metrics.incDisconnect()
		_, _ = c.sm.Transition(DisconnectedEvent, err)

		return nil, err
	})
	if err != nil {
		c.busy.Store(false)
		return 0, err
	}

	return id, nil
}

// LoadPlan validates the plan and stores it as the active plan. Legal only in IDLE.
// Soft limit violations are logged as warnings and do not reject the plan.
func (c *Coordinator) LoadPlan(p *plan.TestPlan) error {
	if p == nil {
		return plan.ErrEmptyPlan
	}
	if st := c.sm.State(); !st.IsIdle() {
		return fmt.Errorf("%w: load plan from %s", ErrInvalidState, st)
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrOperationInProgress
	}
	defer c.busy.Store(false)

	if errs := p.Validate(); len(errs) > 0 {
		return fmt.Errorf("plan %q rejected: %w", p.Name(), errors.Join(errs...))
	}

	for _, warn := range c.cfg.Limits().Check(p) {
		c.logger.Warn("plan exceeds soft limit", "plan", p.Name(), "detail", warn)
	}

	c.mu.Lock()
	c.testPlan = p
	c.mu.Unlock()

	c.logger.Info("plan loaded",
		"plan", p.Name(),
		"kind", p.Kind().String(),
		"steps", p.StepCount(),
		"total_duration", p.TotalDuration(),
	)

	return nil
}

// Run starts executing the loaded plan on a background task. Legal only in IDLE with
// a plan loaded. The run outcome drives the complete, stop or fault transition when
// the executor returns.
func (c *Coordinator) Run() (runner.TaskID, error) {
	if st := c.sm.State(); !st.IsIdle() {
		return 0, fmt.Errorf("%w: run from %s", ErrInvalidState, st)
	}

	c.mu.Lock()
	p := c.testPlan
	c.mu.Unlock()
	if p == nil {
		return 0, ErrNoPlanLoaded
	}

	if !c.busy.CompareAndSwap(false, true) {
		return 0, ErrOperationInProgress
	}

	// Submit first so the task ID is published before RUNNING becomes observable;
	// Stop must never see RUNNING with a stale ID. The worker holds at start until
	// the transition has fired.
	start := make(chan struct{})
	id, err := c.taskMgr.Submit("run "+p.Name(), func(ctx context.Context) (any, error) {
		defer c.busy.Store(false)

		select {
		case <-start:
		case <-ctx.Done():
			select {
			case <-start:
				// Stop raced with the launch; run and let the executor honor the
				// cancellation at its first checkpoint.
			default:
				c.metrics.incStop()
				c.paused.Store(false)
				_, _ = c.sm.Transition(StopRequestedEvent, nil)
				return nil, nil
			}
		}

		report, err := c.executor.Run(ctx, p, c.inst, &c.paused, c.emitSample)

		c.mu.Lock()
		c.lastReport = report
		c.mu.Unlock()
		c.metrics.SetpointWriteCount.Add(report.SetpointWrites)

		if err != nil {
			c.metrics.incFault()
			c.paused.Store(false)
			_, _ = c.sm.Transition(FaultEvent, err)
			return report, err
		}

		if report.Stopped {
			c.metrics.incStop()
			c.paused.Store(false)
			_, _ = c.sm.Transition(StopRequestedEvent, nil)
			return report, nil
		}

		if _, terr := c.sm.Transition(CompleteEvent, nil); terr != nil && c.sm.State().IsPaused() {
			// Pause landed after the final step finished; the run is over either way.
			c.paused.Store(false)
			_, _ = c.sm.Transition(StopRequestedEvent, nil)
		}

		return report, nil
	})
	if err != nil {
		c.busy.Store(false)
		return 0, err
	}

	c.mu.Lock()
	c.runTaskID = id
	c.mu.Unlock()

	if _, terr := c.sm.Transition(RunRequestedEvent, nil); terr != nil {
		c.taskMgr.Cancel(id)
		return 0, terr
	}
	c.paused.Store(false)
	close(start)
	c.metrics.incRun()

	return id, nil
}

// Pause requests a cooperative pause of the active run. The executor honors it at the
// next checkpoint; setpoint command sequences already started are never interrupted.
func (c *Coordinator) Pause() error {
	if _, err := c.sm.Transition(PauseRequestedEvent, nil); err != nil {
		return err
	}

	c.paused.Store(true)
	c.metrics.incPause()
	c.logger.Info("pause requested")

	return nil
}

// Resume releases a paused run. Remaining step time is preserved across the pause.
func (c *Coordinator) Resume() error {
	if _, err := c.sm.Transition(ResumeRequestedEvent, nil); err != nil {
		return err
	}

	c.paused.Store(false)
	c.metrics.incResume()
	c.logger.Info("run resumed")

	return nil
}

// Stop requests cancellation of the active run. Legal from RUNNING and PAUSED. The
// request is asynchronous: the state transition to IDLE happens when the executor
// acknowledges the cancellation and returns.
func (c *Coordinator) Stop() error {
	st := c.sm.State()
	if !st.IsRunning() && !st.IsPaused() {
		return fmt.Errorf("%w: stop from %s", ErrInvalidState, st)
	}

	c.paused.Store(false)

	c.mu.Lock()
	id := c.runTaskID
	c.mu.Unlock()

	c.taskMgr.Cancel(id)
	c.logger.Info("stop requested", "task_id", id)

	return nil
}

// ResetAck acknowledges a fault, clearing ERROR back to UNKNOWN. The caller must
// reconnect before further operations.
func (c *Coordinator) ResetAck() error {
	_, err := c.sm.Transition(ResetAckEvent, nil)
	return err
}

// Drain returns all task results accumulated since the previous call, in completion
// order. It never blocks.
func (c *Coordinator) Drain() []runner.Result {
	return c.taskMgr.Drain()
}

// Plan returns the loaded plan, or nil.
func (c *Coordinator) Plan() *plan.TestPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.testPlan
}

// Identity returns the instrument identification string captured at connect time.
func (c *Coordinator) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// LastReport returns the report of the most recent run, or nil if no run finished yet.
func (c *Coordinator) LastReport() *executor.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReport
}

// Metrics returns the coordinator's operation counters.
func (c *Coordinator) Metrics() *Metrics {
	return &c.metrics
}

// RunnerMetrics returns the task runner's counters.
func (c *Coordinator) RunnerMetrics() *runner.Metrics {
	return c.taskMgr.Metrics()
}

// Close shuts the coordinator down, waiting up to the configured grace period for
// in-flight tasks before cancelling them.
func (c *Coordinator) Close() {
	c.paused.Store(false)
	c.taskMgr.Shutdown(c.cfg.ShutdownGrace())
}

func (c *Coordinator) emitSample(s executor.Sample) {
	c.metrics.incSample()

	c.mu.Lock()
	handlers := make([]ProgressHandler, len(c.progress))
	copy(handlers, c.progress)
	c.mu.Unlock()

	for _, h := range handlers {
		h(s)
	}
}
