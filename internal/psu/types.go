package psu

import (
	"encoding/json"
	"fmt"
)

// OutputState is whether the supply is delivering power.
type OutputState int

const (
	OutputOff OutputState = iota
	OutputOn
)

// argVal is the SOUT argument. The firmware inverts it: 0 is on, 1 is off.
func (s OutputState) argVal() float64 {
	if s == OutputOn {
		return 0
	}
	return 1
}

func (s OutputState) String() string {
	if s == OutputOn {
		return "on"
	}
	return "off"
}

// OutputMode is the regulation mode reported by GETD.
type OutputMode int

const (
	ConstantVoltage OutputMode = iota
	ConstantCurrent
)

func (m OutputMode) String() string {
	switch m {
	case ConstantVoltage:
		return "CV"
	case ConstantCurrent:
		return "CC"
	default:
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
}

func (m OutputMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *OutputMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "CV":
		*m = ConstantVoltage
	case "CC":
		*m = ConstantCurrent
	default:
		return fmt.Errorf("psu: unknown output mode %q", s)
	}
	return nil
}

// PresetIndex selects one of the three stored operating points.
type PresetIndex int

const (
	PresetOne PresetIndex = iota
	PresetTwo
	PresetThree
)

// NumPresets is how many operating points the supply stores.
const NumPresets = 3

func (i PresetIndex) valid() bool {
	return i >= PresetOne && i <= PresetThree
}

// OperatingPoint is a voltage setpoint with its current limit.
type OperatingPoint struct {
	Voltage float64 `json:"voltage" yaml:"voltage"`
	Current float64 `json:"current" yaml:"current"`
}
