package equipment

import (
	"sync/atomic"
)

// Metrics contains atomic metrics for a Coordinator.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// ConnectCount indicates the number of successful connects.
	ConnectCount atomic.Uint64
	// DisconnectCount indicates the number of disconnects.
	DisconnectCount atomic.Uint64
	// RunCount indicates the number of runs started.
	RunCount atomic.Uint64
	// StopCount indicates the number of stop requests.
	StopCount atomic.Uint64
	// PauseCount indicates the number of pause requests.
	PauseCount atomic.Uint64
	// ResumeCount indicates the number of resume requests.
	ResumeCount atomic.Uint64
	// FaultCount indicates the number of faults escalated to the error state.
	FaultCount atomic.Uint64
	// SetpointWriteCount indicates the number of setpoint commands written.
	SetpointWriteCount atomic.Uint64
	// SampleCount indicates the number of progress samples emitted.
	SampleCount atomic.Uint64
}

func (m *Metrics) incConnect()    { m.ConnectCount.Add(1) }
func (m *Metrics) incDisconnect() { m.DisconnectCount.Add(1) }
func (m *Metrics) incRun()        { m.RunCount.Add(1) }
func (m *Metrics) incStop()       { m.StopCount.Add(1) }
func (m *Metrics) incPause()      { m.PauseCount.Add(1) }
func (m *Metrics) incResume()     { m.ResumeCount.Add(1) }
func (m *Metrics) incFault()      { m.FaultCount.Add(1) }
func (m *Metrics) incSample()     { m.SampleCount.Add(1) }
