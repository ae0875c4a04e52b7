package equipment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulturelab/visavulture/executor"
	"github.com/vulturelab/visavulture/instrument"
	"github.com/vulturelab/visavulture/plan"
	"github.com/vulturelab/visavulture/runner"
)

func newTestCoordinator(t *testing.T, inst instrument.Instrument, opts ...Option) *Coordinator {
	t.Helper()

	opts = append([]Option{
		WithPausePollInterval(2 * time.Millisecond),
		WithSampleInterval(5 * time.Millisecond),
		WithShutdownGrace(time.Second),
	}, opts...)

	cfg, err := NewConfig(opts...)
	require.NoError(t, err)

	coord, err := NewCoordinator(context.Background(), inst, cfg)
	require.NoError(t, err)
	t.Cleanup(coord.Close)

	return coord
}

func waitState(t *testing.T, coord *Coordinator, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return coord.State() == want
	}, 2*time.Second, time.Millisecond, "waiting for state %s, still in %s", want, coord.State())
}

// drainN drains until want results arrive. Results are enqueued after the task's
// state transition fires, so a Drain right after a state wait may come up short.
func drainN(t *testing.T, coord *Coordinator, want int) []runner.Result {
	t.Helper()

	var out []runner.Result
	require.Eventually(t, func() bool {
		out = append(out, coord.Drain()...)
		return len(out) >= want
	}, 2*time.Second, time.Millisecond, "waiting for %d results, got %d", want, len(out))

	return out
}

func shortPowerPlan(t *testing.T, stepDur time.Duration, steps int) *plan.TestPlan {
	t.Helper()

	pp := make([]plan.TestStep, steps)
	for i := range pp {
		pp[i] = plan.PowerStep(stepDur, 3.3+float64(i), 1.0)
	}

	p, err := plan.NewPlan("test-plan", plan.PowerSupplyStep, pp)
	require.NoError(t, err)
	return p
}

func TestNewCoordinator(t *testing.T) {
	_, err := NewCoordinator(context.Background(), nil, nil)
	assert.Error(t, err)

	coord, err := NewCoordinator(context.Background(), instrument.NewSimInstrument("x"), nil)
	require.NoError(t, err)
	defer coord.Close()
	assert.Equal(t, UnknownState, coord.State())
}

func TestCoordinatorConnect(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		id, err := coord.Connect("sim://psu0")
		require.NoError(t, err)
		require.NotZero(t, id)

		waitState(t, coord, IdleState)
		assert.Equal(t, "ACME,PSU-1,123,1.0", coord.Identity())
		assert.Equal(t, uint64(1), coord.Metrics().ConnectCount.Load())

		results := drainN(t, coord, 1)
		assert.Equal(t, id, results[0].ID)
		assert.False(t, results[0].Failed())
	})

	t.Run("Failure Leads To Error State", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		sim.FailConnect(errors.New("refused"))
		coord := newTestCoordinator(t, sim)

		var mu sync.Mutex
		var detail error
		coord.OnStateChange(func(prev, next State, d error) {
			if next.IsError() {
				mu.Lock()
				detail = d
				mu.Unlock()
			}
		})

		_, err := coord.Connect("sim://psu0")
		require.NoError(t, err, "validation passes; the failure surfaces asynchronously")

		waitState(t, coord, ErrorState)
		mu.Lock()
		assert.ErrorIs(t, detail, instrument.ErrConnection)
		mu.Unlock()

		results := drainN(t, coord, 1)
		assert.True(t, results[0].Failed())
	})

	t.Run("Rejected While In Flight", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		sim.SetLatency(100 * time.Millisecond)
		coord := newTestCoordinator(t, sim)

		_, err := coord.Connect("sim://psu0")
		require.NoError(t, err)

		_, err = coord.Connect("sim://psu0")
		assert.ErrorIs(t, err, ErrOperationInProgress)

		waitState(t, coord, IdleState)
	})

	t.Run("Rejected In Wrong State", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		connectAndLoad(t, coord, shortPowerPlan(t, time.Second, 1))
		_, err := coord.Run()
		require.NoError(t, err)
		waitState(t, coord, RunningState)

		_, err = coord.Connect("sim://psu0")
		assert.ErrorIs(t, err, ErrInvalidState)

		require.NoError(t, coord.Stop())
		waitState(t, coord, IdleState)
	})

	t.Run("Reset After Error Allows Reconnect", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		sim.FailConnect(errors.New("refused"))
		coord := newTestCoordinator(t, sim)

		_, err := coord.Connect("sim://psu0")
		require.NoError(t, err)
		waitState(t, coord, ErrorState)
		drainN(t, coord, 1)

		require.NoError(t, coord.ResetAck())
		assert.Equal(t, UnknownState, coord.State())

		sim.FailConnect(nil)
		_, err = coord.Connect("sim://psu0")
		require.NoError(t, err)
		waitState(t, coord, IdleState)
	})
}

func TestCoordinatorDisconnect(t *testing.T) {
	sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
	coord := newTestCoordinator(t, sim)

	t.Run("Rejected Before Connect", func(t *testing.T) {
		_, err := coord.Disconnect()
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("From Idle", func(t *testing.T) {
		_, err := coord.Connect("sim://psu0")
		require.NoError(t, err)
		waitState(t, coord, IdleState)
		drainN(t, coord, 1)

		_, err = coord.Disconnect()
		require.NoError(t, err)
		waitState(t, coord, UnknownState)
		assert.Empty(t, coord.Identity())
		assert.Equal(t, uint64(1), coord.Metrics().DisconnectCount.Load())
	})
}

func TestCoordinatorLoadPlan(t *testing.T) {
	sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
	coord := newTestCoordinator(t, sim)

	t.Run("Rejected Before Connect", func(t *testing.T) {
		err := coord.LoadPlan(shortPowerPlan(t, time.Millisecond, 1))
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("Nil Plan", func(t *testing.T) {
		assert.ErrorIs(t, coord.LoadPlan(nil), plan.ErrEmptyPlan)
	})

	t.Run("Loaded In Idle", func(t *testing.T) {
		_, err := coord.Connect("sim://psu0")
		require.NoError(t, err)
		waitState(t, coord, IdleState)
		drainN(t, coord, 1)

		p := shortPowerPlan(t, time.Millisecond, 2)
		require.NoError(t, coord.LoadPlan(p))
		assert.Equal(t, p, coord.Plan())
	})
}

func TestCoordinatorRun(t *testing.T) {
	t.Run("No Plan Loaded", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		_, err := coord.Connect("sim://psu0")
		require.NoError(t, err)
		waitState(t, coord, IdleState)
		drainN(t, coord, 1)

		_, err = coord.Run()
		assert.ErrorIs(t, err, ErrNoPlanLoaded)
	})

	t.Run("Rejected Before Connect", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		_, err := coord.Run()
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("End To End", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		var mu sync.Mutex
		var transitions []State
		coord.OnStateChange(func(prev, next State, detail error) {
			mu.Lock()
			transitions = append(transitions, next)
			mu.Unlock()
		})

		var samples []executor.Sample
		coord.OnProgress(func(s executor.Sample) {
			mu.Lock()
			samples = append(samples, s)
			mu.Unlock()
		})

		connectAndLoad(t, coord, shortPowerPlan(t, 20*time.Millisecond, 2))

		id, err := coord.Run()
		require.NoError(t, err)
		waitState(t, coord, IdleState)

		results := drainN(t, coord, 1)
		runRes := results[0]
		assert.Equal(t, id, runRes.ID)
		require.False(t, runRes.Failed())

		report, ok := runRes.Value.(*executor.Report)
		require.True(t, ok)
		assert.True(t, report.Completed)
		assert.Equal(t, 2, report.StepsExecuted)
		assert.Equal(t, report, coord.LastReport())

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []State{IdleState, RunningState, IdleState}, transitions)
		assert.NotEmpty(t, samples)
		assert.Equal(t, uint64(len(samples)), coord.Metrics().SampleCount.Load())
		assert.Equal(t, report.SetpointWrites, coord.Metrics().SetpointWriteCount.Load())
		assert.Equal(t, uint64(1), coord.Metrics().RunCount.Load())
	})

	t.Run("Fault Mid Run", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		connectAndLoad(t, coord, shortPowerPlan(t, 20*time.Millisecond, 3))

		// Steps command 3.3, 4.3, 5.3 volts; only the second fails.
		sim.FailOn("VOLT 4.300", errors.New("interlock"))

		_, err := coord.Run()
		require.NoError(t, err)
		waitState(t, coord, ErrorState)

		report := coord.LastReport()
		require.NotNil(t, report)
		assert.False(t, report.Completed)
		assert.Equal(t, 1, report.StepsExecuted)
		assert.Equal(t, uint64(1), coord.Metrics().FaultCount.Load())

		results := drainN(t, coord, 1)
		assert.True(t, results[0].Failed())
	})

	t.Run("Unexpected Disconnect Mid Run", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		var mu sync.Mutex
		var faults int
		coord.OnStateChange(func(prev, next State, detail error) {
			if next.IsError() {
				mu.Lock()
				faults++
				mu.Unlock()
			}
		})

		connectAndLoad(t, coord, shortPowerPlan(t, 50*time.Millisecond, 3))

		_, err := coord.Run()
		require.NoError(t, err)
		waitState(t, coord, RunningState)

		// The drop surfaces on the next instrument transaction as a
		// communication error and escalates to a fault.
		sim.DropConnection()
		waitState(t, coord, ErrorState)

		report := coord.LastReport()
		require.NotNil(t, report)
		assert.False(t, report.Completed)
		assert.Less(t, report.StepsExecuted, 3)
		assert.Equal(t, uint64(1), coord.Metrics().FaultCount.Load())

		results := drainN(t, coord, 1)
		assert.True(t, results[0].Failed())
		assert.ErrorIs(t, results[0].Err, instrument.ErrCommunication)

		mu.Lock()
		assert.Equal(t, 1, faults)
		mu.Unlock()
	})

	t.Run("Stop", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		connectAndLoad(t, coord, shortPowerPlan(t, time.Second, 2))

		_, err := coord.Run()
		require.NoError(t, err)
		waitState(t, coord, RunningState)

		require.NoError(t, coord.Stop())
		waitState(t, coord, IdleState)

		report := coord.LastReport()
		require.NotNil(t, report)
		assert.True(t, report.Stopped)
		assert.False(t, report.Completed)
		assert.Equal(t, uint64(1), coord.Metrics().StopCount.Load())

		// A stopped run is not a failure.
		results := drainN(t, coord, 1)
		assert.False(t, results[0].Failed())
	})

	t.Run("Stop From State Observer", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		connectAndLoad(t, coord, shortPowerPlan(t, time.Second, 2))

		// Stopping the instant RUNNING becomes observable must cancel the run that
		// was just launched, not a stale task ID.
		var stopErr error
		coord.OnStateChange(func(prev, next State, d error) {
			if next.IsRunning() {
				stopErr = coord.Stop()
			}
		})

		_, err := coord.Run()
		require.NoError(t, err)
		require.NoError(t, stopErr)

		waitState(t, coord, IdleState)
		assert.Equal(t, uint64(1), coord.Metrics().StopCount.Load())

		results := drainN(t, coord, 1)
		assert.False(t, results[0].Failed())
	})

	t.Run("Pause and Resume", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		connectAndLoad(t, coord, shortPowerPlan(t, 60*time.Millisecond, 2))

		_, err := coord.Run()
		require.NoError(t, err)
		waitState(t, coord, RunningState)

		require.NoError(t, coord.Pause())
		assert.Equal(t, PausedState, coord.State())

		// Paused well past the plan's total duration; the run must not finish.
		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, PausedState, coord.State())

		require.NoError(t, coord.Resume())
		waitState(t, coord, IdleState)

		report := coord.LastReport()
		require.NotNil(t, report)
		assert.True(t, report.Completed)
		assert.Equal(t, uint64(1), coord.Metrics().PauseCount.Load())
		assert.Equal(t, uint64(1), coord.Metrics().ResumeCount.Load())
	})

	t.Run("Stop While Paused", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		connectAndLoad(t, coord, shortPowerPlan(t, time.Second, 2))

		_, err := coord.Run()
		require.NoError(t, err)
		waitState(t, coord, RunningState)

		require.NoError(t, coord.Pause())
		require.NoError(t, coord.Stop())
		waitState(t, coord, IdleState)

		report := coord.LastReport()
		require.NotNil(t, report)
		assert.True(t, report.Stopped)
	})

	t.Run("Control Signals Rejected When Not Running", func(t *testing.T) {
		sim := instrument.NewSimInstrument("ACME,PSU-1,123,1.0")
		coord := newTestCoordinator(t, sim)

		connectAndLoad(t, coord, shortPowerPlan(t, time.Millisecond, 1))

		assert.ErrorIs(t, coord.Pause(), ErrIllegalTransition)
		assert.ErrorIs(t, coord.Resume(), ErrIllegalTransition)
		assert.ErrorIs(t, coord.Stop(), ErrInvalidState)
		assert.ErrorIs(t, coord.ResetAck(), ErrIllegalTransition)
	})
}

func connectAndLoad(t *testing.T, coord *Coordinator, p *plan.TestPlan) {
	t.Helper()

	if coord.State() == UnknownState {
		_, err := coord.Connect("sim://psu0")
		require.NoError(t, err)
		waitState(t, coord, IdleState)
		drainN(t, coord, 1)
	}
	require.NoError(t, coord.LoadPlan(p))
}
