package equipment

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulturelab/visavulture/logger"
)

func TestStateMachineTransitions(t *testing.T) {
	t.Run("Initial State", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())
		assert.Equal(t, UnknownState, sm.State())
	})

	t.Run("Full Run Lifecycle", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())

		next, err := sm.Transition(ConnectOKEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, IdleState, next)

		next, err = sm.Transition(RunRequestedEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, RunningState, next)

		next, err = sm.Transition(PauseRequestedEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, PausedState, next)

		next, err = sm.Transition(ResumeRequestedEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, RunningState, next)

		next, err = sm.Transition(CompleteEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, IdleState, next)

		next, err = sm.Transition(DisconnectedEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, UnknownState, next)
	})

	t.Run("Stop From Running and Paused", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())
		mustTransition(t, sm, ConnectOKEvent, RunRequestedEvent)

		next, err := sm.Transition(StopRequestedEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, IdleState, next)

		mustTransition(t, sm, RunRequestedEvent, PauseRequestedEvent)
		next, err = sm.Transition(StopRequestedEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, IdleState, next)
	})

	t.Run("Connect Failure", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())

		next, err := sm.Transition(ConnectFailEvent, errors.New("refused"))
		require.NoError(t, err)
		assert.Equal(t, ErrorState, next)
	})

	t.Run("Reset From Error", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())
		mustTransition(t, sm, ConnectFailEvent)

		next, err := sm.Transition(ResetAckEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, UnknownState, next)
	})

	t.Run("Disconnect From Error", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())
		mustTransition(t, sm, ConnectFailEvent)

		next, err := sm.Transition(DisconnectedEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, UnknownState, next)
	})

	t.Run("Fault From Every State", func(t *testing.T) {
		setups := map[string][]Event{
			"unknown": nil,
			"idle":    {ConnectOKEvent},
			"running": {ConnectOKEvent, RunRequestedEvent},
			"paused":  {ConnectOKEvent, RunRequestedEvent, PauseRequestedEvent},
			"error":   {ConnectFailEvent},
		}

		for name, events := range setups {
			t.Run(name, func(t *testing.T) {
				sm := NewStateMachine(logger.GetLogger())
				mustTransition(t, sm, events...)

				next, err := sm.Transition(FaultEvent, errors.New("link lost"))
				require.NoError(t, err)
				assert.Equal(t, ErrorState, next)
			})
		}
	})
}

func TestStateMachineIllegalTransitions(t *testing.T) {
	cases := []struct {
		name   string
		setup  []Event
		event  Event
		expect State
	}{
		{"run before connect", nil, RunRequestedEvent, UnknownState},
		{"pause before run", []Event{ConnectOKEvent}, PauseRequestedEvent, IdleState},
		{"resume while idle", []Event{ConnectOKEvent}, ResumeRequestedEvent, IdleState},
		{"stop while idle", []Event{ConnectOKEvent}, StopRequestedEvent, IdleState},
		{"complete while idle", []Event{ConnectOKEvent}, CompleteEvent, IdleState},
		{"connect while running", []Event{ConnectOKEvent, RunRequestedEvent}, ConnectOKEvent, RunningState},
		{"disconnect while running", []Event{ConnectOKEvent, RunRequestedEvent}, DisconnectedEvent, RunningState},
		{"run while paused", []Event{ConnectOKEvent, RunRequestedEvent, PauseRequestedEvent}, RunRequestedEvent, PausedState},
		{"pause while paused", []Event{ConnectOKEvent, RunRequestedEvent, PauseRequestedEvent}, PauseRequestedEvent, PausedState},
		{"run while error", []Event{ConnectFailEvent}, RunRequestedEvent, ErrorState},
		{"reset while idle", []Event{ConnectOKEvent}, ResetAckEvent, IdleState},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sm := NewStateMachine(logger.GetLogger())
			mustTransition(t, sm, tc.setup...)

			var observed bool
			sm.OnChange(func(prev, next State, detail error) { observed = true })

			assert.False(t, sm.CanTransition(tc.event))

			got, err := sm.Transition(tc.event, nil)
			require.ErrorIs(t, err, ErrIllegalTransition)
			assert.Equal(t, tc.expect, got, "state must be unchanged")
			assert.Equal(t, tc.expect, sm.State())
			assert.False(t, observed, "observers must not fire on rejected transitions")
		})
	}
}

func TestStateMachineObservers(t *testing.T) {
	t.Run("All Observers Notified In Order", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())

		var order []int
		var gotPrev, gotNext State
		sm.OnChange(func(prev, next State, detail error) {
			order = append(order, 1)
			gotPrev, gotNext = prev, next
		})
		sm.OnChange(func(prev, next State, detail error) {
			order = append(order, 2)
		})

		_, err := sm.Transition(ConnectOKEvent, nil)
		require.NoError(t, err)

		assert.Equal(t, []int{1, 2}, order)
		assert.Equal(t, UnknownState, gotPrev)
		assert.Equal(t, IdleState, gotNext)
	})

	t.Run("Detail Error Delivered", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())
		cause := errors.New("instrument unreachable")

		var gotDetail error
		sm.OnChange(func(prev, next State, detail error) { gotDetail = detail })

		_, err := sm.Transition(ConnectFailEvent, cause)
		require.NoError(t, err)
		assert.Equal(t, cause, gotDetail)
	})

	t.Run("Constructor Handlers", func(t *testing.T) {
		var count int
		sm := NewStateMachine(logger.GetLogger(), func(prev, next State, detail error) {
			count++
		})

		mustTransition(t, sm, ConnectOKEvent, RunRequestedEvent)
		assert.Equal(t, 2, count)
	})

	t.Run("Reentrant Transition Rejected", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())

		var reentrantErr error
		sm.OnChange(func(prev, next State, detail error) {
			_, reentrantErr = sm.Transition(RunRequestedEvent, nil)
		})

		next, err := sm.Transition(ConnectOKEvent, nil)
		require.NoError(t, err)
		assert.Equal(t, IdleState, next)
		assert.ErrorIs(t, reentrantErr, ErrReentrantTransition)
		assert.Equal(t, IdleState, sm.State(), "nested transition must not apply")
	})
}

func TestStateMachineConcurrency(t *testing.T) {
	// Many goroutines race the same event; exactly one transition succeeds and every
	// loser gets ErrIllegalTransition with the state intact.
	sm := NewStateMachine(logger.GetLogger())
	mustTransition(t, sm, ConnectOKEvent)

	const workers = 32
	var wg sync.WaitGroup
	var successes, failures int
	var mu sync.Mutex

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := sm.Transition(RunRequestedEvent, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
			} else {
				successes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, failures)
	assert.Equal(t, RunningState, sm.State())
}

func mustTransition(t *testing.T, sm *StateMachine, events ...Event) {
	t.Helper()
	for _, ev := range events {
		_, err := sm.Transition(ev, nil)
		require.NoError(t, err)
	}
}
