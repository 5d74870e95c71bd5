package psu

import "io"

// Command is one request to the supply. Every command is a 4-character
// function code followed by fixed-width digits and a carriage return.
//
// The set of commands is closed; see the types below.
type Command interface {
	Function() string
	appendArgs(b []byte, v *Variant) ([]byte, error)
}

// MaxCommandLen is the length of the longest command (PROM).
const MaxCommandLen = 4 + 6*3 + 1

const terminator = '\r'

// Serialize encodes cmd for the given model. Encoding is all-or-nothing.
func Serialize(cmd Command, v *Variant) ([]byte, error) {
	return AppendCommand(make([]byte, 0, MaxCommandLen), cmd, v)
}

// AppendCommand appends the encoded command to b. On error b is returned
// without any of the command's bytes.
func AppendCommand(b []byte, cmd Command, v *Variant) ([]byte, error) {
	start := len(b)
	b = append(b, cmd.Function()...)
	b, err := cmd.appendArgs(b, v)
	if err != nil {
		return b[:start], err
	}
	return append(b, terminator), nil
}

// WriteCommand serializes cmd and hands it to w in a single Write.
func WriteCommand(w io.Writer, cmd Command, v *Variant) error {
	tx, err := Serialize(cmd, v)
	if err != nil {
		return err
	}
	return writeFrame(w, tx)
}

// writeFrame hands an encoded command to w in a single Write.
func writeFrame(w io.Writer, tx []byte) error {
	debugLog("tx: %q", tx)
	n, err := w.Write(tx)
	if err != nil {
		return &WriteError{Err: err}
	}
	if n != len(tx) {
		return &WriteError{Err: io.ErrShortWrite}
	}
	return nil
}

// ----------------------------------------------------------------------

// SetVoltage sets the output voltage.
type SetVoltage struct {
	Voltage float64
}

func (SetVoltage) Function() string { return "VOLT" }

func (c SetVoltage) appendArgs(b []byte, v *Variant) ([]byte, error) {
	if v == nil {
		return b, ErrUnknownVariant
	}
	return v.voltageFormat().Append(b, c.Voltage)
}

// SetVoltageLimit sets the over-voltage protection level.
type SetVoltageLimit struct {
	Voltage float64
}

func (SetVoltageLimit) Function() string { return "SOVP" }

func (c SetVoltageLimit) appendArgs(b []byte, v *Variant) ([]byte, error) {
	if v == nil {
		return b, ErrUnknownVariant
	}
	return v.voltageFormat().Append(b, c.Voltage)
}

// SetCurrent sets the output current limit.
type SetCurrent struct {
	Current float64
}

func (SetCurrent) Function() string { return "CURR" }

func (c SetCurrent) appendArgs(b []byte, v *Variant) ([]byte, error) {
	if v == nil {
		return b, ErrUnknownVariant
	}
	return v.currentFormat().Append(b, c.Current)
}

// SetCurrentLimit sets the over-current protection level.
type SetCurrentLimit struct {
	Current float64
}

func (SetCurrentLimit) Function() string { return "SOCP" }

func (c SetCurrentLimit) appendArgs(b []byte, v *Variant) ([]byte, error) {
	if v == nil {
		return b, ErrUnknownVariant
	}
	return v.currentFormat().Append(b, c.Current)
}

// SetOutput switches the output on or off.
type SetOutput struct {
	State OutputState
}

func (SetOutput) Function() string { return "SOUT" }

func (c SetOutput) appendArgs(b []byte, _ *Variant) ([]byte, error) {
	if c.State != OutputOn && c.State != OutputOff {
		return b, &ValueUnrepresentableError{Value: float64(c.State)}
	}
	return flagFormat.Append(b, c.State.argVal())
}

// SelectPreset recalls one of the operating points stored with SetPresets.
type SelectPreset struct {
	Index PresetIndex
}

func (SelectPreset) Function() string { return "RUNM" }

func (c SelectPreset) appendArgs(b []byte, _ *Variant) ([]byte, error) {
	if !c.Index.valid() {
		return b, &ValueUnrepresentableError{Value: float64(c.Index)}
	}
	return flagFormat.Append(b, float64(c.Index))
}

// SetPresets stores three operating points.
type SetPresets struct {
	Presets Presets
}

func (SetPresets) Function() string { return "PROM" }

func (c SetPresets) appendArgs(b []byte, v *Variant) ([]byte, error) {
	if v == nil {
		return b, ErrUnknownVariant
	}
	vf, cf := v.voltageFormat(), v.currentFormat()
	var err error
	for _, p := range c.Presets {
		if b, err = vf.Append(b, p.Voltage); err != nil {
			return b, err
		}
		if b, err = cf.Append(b, p.Current); err != nil {
			return b, err
		}
	}
	return b, nil
}

// ----------------------------------------------------------------------
// Queries. None carries arguments.

type noArgs struct{}

func (noArgs) appendArgs(b []byte, _ *Variant) ([]byte, error) { return b, nil }

// GetSettings reads the voltage and current setpoints. Answered by Settings.
type GetSettings struct{ noArgs }

// GetStatus reads the live output as shown on the front panel. Answered by
// Status.
type GetStatus struct{ noArgs }

// GetVoltageLimit reads the over-voltage level. Answered by Voltage.
type GetVoltageLimit struct{ noArgs }

// GetCurrentLimit reads the over-current level. Answered by Current.
type GetCurrentLimit struct{ noArgs }

// GetCapabilities reads the hardware maximums, unaffected by the soft
// limits. Answered by Capabilities.
type GetCapabilities struct{ noArgs }

// GetPresets reads the stored operating points. Answered by Presets.
type GetPresets struct{ noArgs }

func (GetSettings) Function() string     { return "GETS" }
func (GetStatus) Function() string       { return "GETD" }
func (GetVoltageLimit) Function() string { return "GOVP" }
func (GetCurrentLimit) Function() string { return "GOCP" }
func (GetCapabilities) Function() string { return "GMAX" }
func (GetPresets) Function() string      { return "GETM" }
