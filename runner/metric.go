package runner

import (
	"sync/atomic"
)

// Metrics contains atomic counters for a Runner.
// Counters can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// SubmittedCount indicates the number of tasks accepted by Submit.
	SubmittedCount atomic.Uint64
	// CompletedCount indicates the number of tasks that finished without error.
	CompletedCount atomic.Uint64
	// FailedCount indicates the number of tasks that returned an error.
	FailedCount atomic.Uint64
	// CancelledCount indicates the number of tasks that honored cancellation.
	CancelledCount atomic.Uint64
	// PanicCount indicates the number of tasks that panicked.
	PanicCount atomic.Uint64
}

func (m *Metrics) incSubmitted() { m.SubmittedCount.Add(1) }
func (m *Metrics) incCompleted() { m.CompletedCount.Add(1) }
func (m *Metrics) incFailed()    { m.FailedCount.Add(1) }
func (m *Metrics) incCancelled() { m.CancelledCount.Add(1) }
func (m *Metrics) incPanic()     { m.PanicCount.Add(1) }
