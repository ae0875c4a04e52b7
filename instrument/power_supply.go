package instrument

import (
	"fmt"
	"strconv"

	"github.com/vulturelab/visavulture/logger"
)

// PowerSupply wraps an Instrument with typed power supply setpoint commands.
type PowerSupply struct {
	inst   Instrument
	logger logger.Logger
	name   string
}

// NewPowerSupply creates a power supply wrapper around the given instrument
// capability.
func NewPowerSupply(name string, inst Instrument, l logger.Logger) *PowerSupply {
	if l == nil {
		l = logger.GetLogger()
	}
	return &PowerSupply{inst: inst, logger: l, name: name}
}

// SetVoltage commands the output voltage setpoint in volts.
func (p *PowerSupply) SetVoltage(volts float64) error {
	p.logger.Info("setting voltage", "instrument", p.name, "volts", volts)
	return p.inst.Write(fmt.Sprintf("VOLT %.3f", volts))
}

// SetCurrent commands the output current limit in amps.
func (p *PowerSupply) SetCurrent(amps float64) error {
	p.logger.Info("setting current", "instrument", p.name, "amps", amps)
	return p.inst.Write(fmt.Sprintf("CURR %.3f", amps))
}

// Voltage queries the current voltage setpoint.
func (p *PowerSupply) Voltage() (float64, error) {
	resp, err := p.inst.Query("VOLT?")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// Current queries the current limit setpoint.
func (p *PowerSupply) Current() (float64, error) {
	resp, err := p.inst.Query("CURR?")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// EnableOutput turns the supply output on.
func (p *PowerSupply) EnableOutput() error {
	p.logger.Info("enabling output", "instrument", p.name)
	return p.inst.Write("OUTP ON")
}

// DisableOutput turns the supply output off.
func (p *PowerSupply) DisableOutput() error {
	p.logger.Info("disabling output", "instrument", p.name)
	return p.inst.Write("OUTP OFF")
}
