package instrument

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SimInstrument is an in-memory instrument that honors the same SCPI verbs as the
// typed wrappers. It records every command it receives and supports scripted failures,
// which makes it the workhorse for tests, the example, and the demo CLI.
//
// All methods are safe for concurrent use.
type SimInstrument struct {
	mu sync.Mutex

	idn     string
	latency time.Duration

	connected bool
	dropped   bool
	outputOn  bool

	setpoints map[string]float64
	amOn      bool
	fmOn      bool

	commands []string

	connectErr error
	failures   map[string]error // command prefix -> scripted error
}

var _ Instrument = (*SimInstrument)(nil)

// NewSimInstrument creates a simulated instrument reporting the given identity string.
func NewSimInstrument(idn string) *SimInstrument {
	return &SimInstrument{
		idn:       idn,
		setpoints: make(map[string]float64),
		failures:  make(map[string]error),
	}
}

// SetLatency makes every transaction take at least d, simulating a slow physical
// transaction.
func (s *SimInstrument) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// FailConnect scripts the next Connect calls to fail with err. Pass nil to clear.
func (s *SimInstrument) FailConnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// FailOn scripts every command starting with prefix to fail with err.
// Pass a nil err to clear the script for prefix.
func (s *SimInstrument) FailOn(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, prefix)
		return
	}
	s.failures[prefix] = err
}

// DropConnection simulates an unexpected physical disconnect: the instrument still
// believes it is connected, but every subsequent transaction fails with
// ErrCommunication.
func (s *SimInstrument) DropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = true
}

// Commands returns a copy of every command received so far, in order.
func (s *SimInstrument) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// Connect opens the simulated connection.
func (s *SimInstrument) Connect(ctx context.Context, address string) error {
	s.mu.Lock()
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
		case <-time.After(latency):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnection, address, s.connectErr)
	}
	if s.connected {
		return ErrAlreadyConnected
	}

	s.connected = true
	s.dropped = false

	return nil
}

// Disconnect closes the simulated connection. Disconnecting when not connected is a
// no-op.
func (s *SimInstrument) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	s.dropped = false
	s.outputOn = false

	return nil
}

// Write executes a command transaction.
func (s *SimInstrument) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTransaction(cmd); err != nil {
		return err
	}

	s.commands = append(s.commands, cmd)
	s.apply(cmd)

	return nil
}

// Query executes a query transaction and returns the simulated response.
func (s *SimInstrument) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTransaction(cmd); err != nil {
		return "", err
	}

	s.commands = append(s.commands, cmd)

	switch {
	case cmd == "*IDN?":
		return s.idn, nil
	case cmd == "OUTP?":
		if s.outputOn {
			return "1", nil
		}
		return "0", nil
	case strings.HasSuffix(cmd, "?"):
		name := setpointName(strings.TrimSuffix(cmd, "?"))
		if name == "" {
			return "", fmt.Errorf("%w: unknown query %q", ErrCommand, cmd)
		}
		return strconv.FormatFloat(s.setpoints[name], 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: not a query: %q", ErrCommand, cmd)
	}
}

// Status returns the simulated instrument state snapshot.
func (s *SimInstrument) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped {
		return Status{}, fmt.Errorf("%w: connection dropped", ErrCommunication)
	}

	setpoints := make(map[string]float64, len(s.setpoints))
	for k, v := range s.setpoints {
		setpoints[k] = v
	}

	return Status{
		Connected: s.connected,
		OutputOn:  s.outputOn,
		Setpoints: setpoints,
	}, nil
}

// checkTransaction enforces connection state and scripted failures. Callers hold mu.
func (s *SimInstrument) checkTransaction(cmd string) error {
	if !s.connected {
		return ErrNotConnected
	}
	if s.dropped {
		return fmt.Errorf("%w: connection dropped", ErrCommunication)
	}
	if s.latency > 0 {
		// Hold the lock for the latency window; a physical transaction occupies the
		// whole connection.
		time.Sleep(s.latency)
	}
	for prefix, err := range s.failures {
		if strings.HasPrefix(cmd, prefix) {
			return fmt.Errorf("%w: %q: %v", ErrCommand, cmd, err)
		}
	}

	return nil
}

// apply updates the simulated state for a write command. Callers hold mu.
func (s *SimInstrument) apply(cmd string) {
	verb, arg, _ := strings.Cut(cmd, " ")

	switch verb {
	case "OUTP":
		s.outputOn = arg == "ON"
	case "AM:STAT":
		s.amOn = arg == "ON"
	case "FM:STAT":
		s.fmOn = arg == "ON"
	default:
		if name := setpointName(verb); name != "" {
			if v, err := strconv.ParseFloat(arg, 64); err == nil {
				s.setpoints[name] = v
			}
		}
	}
}

// setpointName maps a SCPI verb to a Status setpoint key.
func setpointName(verb string) string {
	switch verb {
	case "VOLT":
		return "voltage"
	case "CURR":
		return "current"
	case "FREQ":
		return "frequency"
	case "POW":
		return "power"
	case "AM:DEPT":
		return "am_depth"
	case "AM:INT:FREQ":
		return "am_frequency"
	case "FM:DEV":
		return "fm_deviation"
	case "FM:INT:FREQ":
		return "fm_frequency"
	default:
		return ""
	}
}
