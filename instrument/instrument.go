// Package instrument defines the instrument capability consumed by the execution core,
// typed wrappers that format SCPI setpoint commands for specific instrument kinds, and
// simulated/mock implementations for tests and demos.
//
// The wire-level transport behind the capability (VISA or otherwise) is not part of
// this module; any implementation of the Instrument interface can be driven.
package instrument

import (
	"context"
	"strings"
	"time"
)

// Instrument is the capability interface for a single physical instrument connection.
//
// Every call may block for up to the transport's configured timeout; callers must not
// invoke these methods from a thread that cannot tolerate blocking. Implementations
// serialize access internally, but the execution core additionally guarantees at most
// one in-flight operation per instrument.
type Instrument interface {
	// Connect opens the connection to the instrument at the given address.
	// It fails with an error wrapping ErrConnection when the instrument is
	// unreachable.
	Connect(ctx context.Context, address string) error

	// Disconnect closes the connection. Disconnecting an unconnected instrument is a
	// no-op.
	Disconnect() error

	// Write sends a command that produces no response.
	Write(cmd string) error

	// Query sends a command and returns the instrument's response.
	Query(cmd string) (string, error)

	// Status returns a snapshot of the instrument state. It fails with an error
	// wrapping ErrCommunication when the instrument stopped responding.
	Status() (Status, error)
}

// Status is a structured snapshot of instrument state.
type Status struct {
	Connected bool
	OutputOn  bool
	// Setpoints maps setpoint names (for example "voltage", "frequency") to the last
	// commanded values.
	Setpoints map[string]float64
}

// Identify queries the instrument identity string (*IDN?) and returns it trimmed.
func Identify(inst Instrument) (string, error) {
	idn, err := inst.Query("*IDN?")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(idn), nil
}

// ConnectTimeout is the default connect timeout applied by callers that have no
// explicit configuration.
const ConnectTimeout = 5 * time.Second
