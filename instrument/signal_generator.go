package instrument

import (
	"fmt"
	"strconv"

	"github.com/vulturelab/visavulture/logger"
	"github.com/vulturelab/visavulture/plan"
)

// SignalGenerator wraps an Instrument with typed signal generator setpoint commands,
// including AM and FM modulation control.
type SignalGenerator struct {
	inst   Instrument
	logger logger.Logger
	name   string
}

// NewSignalGenerator creates a signal generator wrapper around the given instrument
// capability.
func NewSignalGenerator(name string, inst Instrument, l logger.Logger) *SignalGenerator {
	if l == nil {
		l = logger.GetLogger()
	}
	return &SignalGenerator{inst: inst, logger: l, name: name}
}

// SetFrequency commands the output frequency in Hertz.
func (g *SignalGenerator) SetFrequency(hz float64) error {
	g.logger.Info("setting frequency", "instrument", g.name, "hz", hz)
	return g.inst.Write(fmt.Sprintf("FREQ %.1f", hz))
}

// SetPower commands the output power level in dBm.
func (g *SignalGenerator) SetPower(dbm float64) error {
	g.logger.Info("setting power", "instrument", g.name, "dbm", dbm)
	return g.inst.Write(fmt.Sprintf("POW %.2f", dbm))
}

// Frequency queries the current frequency setpoint.
func (g *SignalGenerator) Frequency() (float64, error) {
	resp, err := g.inst.Query("FREQ?")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// Power queries the current power setpoint.
func (g *SignalGenerator) Power() (float64, error) {
	resp, err := g.inst.Query("POW?")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// EnableOutput turns the generator output on.
func (g *SignalGenerator) EnableOutput() error {
	g.logger.Info("enabling output", "instrument", g.name)
	return g.inst.Write("OUTP ON")
}

// DisableOutput turns the generator output off.
func (g *SignalGenerator) DisableOutput() error {
	g.logger.Info("disabling output", "instrument", g.name)
	return g.inst.Write("OUTP OFF")
}

// ConfigureModulation programs the modulation parameters without enabling modulation.
// The modulation state itself is toggled per step with SetModulationState.
func (g *SignalGenerator) ConfigureModulation(cfg *plan.ModulationConfig) error {
	switch cfg.Type {
	case plan.ModulationAM:
		g.logger.Info("configuring AM modulation", "instrument", g.name, "depth_pct", cfg.DepthPercent, "mod_hz", cfg.FrequencyHz)
		if err := g.inst.Write(fmt.Sprintf("AM:DEPT %.1f", cfg.DepthPercent)); err != nil {
			return err
		}
		return g.inst.Write(fmt.Sprintf("AM:INT:FREQ %.1f", cfg.FrequencyHz))
	case plan.ModulationFM:
		g.logger.Info("configuring FM modulation", "instrument", g.name, "deviation_hz", cfg.DeviationHz, "mod_hz", cfg.FrequencyHz)
		if err := g.inst.Write(fmt.Sprintf("FM:DEV %.1f", cfg.DeviationHz)); err != nil {
			return err
		}
		return g.inst.Write(fmt.Sprintf("FM:INT:FREQ %.1f", cfg.FrequencyHz))
	default:
		return fmt.Errorf("%w: unknown modulation type %d", ErrCommand, cfg.Type)
	}
}

// SetModulationState enables or disables the configured modulation type.
func (g *SignalGenerator) SetModulationState(cfg *plan.ModulationConfig, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}

	switch cfg.Type {
	case plan.ModulationAM:
		return g.inst.Write("AM:STAT " + state)
	case plan.ModulationFM:
		return g.inst.Write("FM:STAT " + state)
	default:
		return fmt.Errorf("%w: unknown modulation type %d", ErrCommand, cfg.Type)
	}
}
