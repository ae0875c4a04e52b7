package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitsCheck(t *testing.T) {
	limits := DefaultLimits()

	t.Run("Within Limits", func(t *testing.T) {
		p, err := NewPlan("nominal", PowerSupplyStep, []TestStep{
			PowerStep(time.Second, 12.0, 2.0),
		})
		require.NoError(t, err)

		assert.Empty(t, limits.Check(p))
	})

	t.Run("Power Supply Violations", func(t *testing.T) {
		p, err := NewPlan("hot", PowerSupplyStep, []TestStep{
			PowerStep(time.Second, 250.0, 80.0),
		})
		require.NoError(t, err, "soft limits must not reject the plan")

		warnings := limits.Check(p)
		require.Len(t, warnings, 2)
		assert.Contains(t, warnings[0], "voltage")
		assert.Contains(t, warnings[1], "current")
	})

	t.Run("Signal Generator Violations", func(t *testing.T) {
		p, err := NewPlan("loud", SignalGeneratorStep, []TestStep{
			SignalStep(time.Second, 80e9, 40.0, false),
		})
		require.NoError(t, err)

		warnings := limits.Check(p)
		require.Len(t, warnings, 2)
		assert.Contains(t, warnings[0], "power")
		assert.Contains(t, warnings[1], "frequency")
	})

	t.Run("Duration Violation", func(t *testing.T) {
		p, err := NewPlan("endless", PowerSupplyStep, []TestStep{
			PowerStep(48*time.Hour, 3.3, 1.0),
		})
		require.NoError(t, err)

		warnings := limits.Check(p)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "duration")
	})

	t.Run("Warnings Name The Step", func(t *testing.T) {
		p, err := NewPlan("second-step", PowerSupplyStep, []TestStep{
			PowerStep(time.Second, 3.3, 1.0),
			PowerStep(time.Second, 250.0, 1.0),
		})
		require.NoError(t, err)

		warnings := limits.Check(p)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "step 2")
	})
}
