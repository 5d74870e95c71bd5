package psu

import "strings"

// Variant describes the protocol quirks of one supply model.
//
// Variants cannot be built outside this package; use one of BK1685B,
// BK1687B or BK1688B, or resolve one with LookupVariant or
// VariantForMaxVoltage.
type Variant struct {
	model             string
	nominalMaxVoltage int
	nominalMaxCurrent int
	currentDecimals   int
	voltageDecimals   int
}

var (
	// BK1685B is the 60V / 5A model.
	BK1685B = &Variant{
		model:             "BK1685B",
		nominalMaxVoltage: 60,
		nominalMaxCurrent: 5,
		currentDecimals:   2,
		voltageDecimals:   1,
	}

	// BK1687B is the 36V / 10A model.
	BK1687B = &Variant{
		model:             "BK1687B",
		nominalMaxVoltage: 36,
		nominalMaxCurrent: 10,
		currentDecimals:   1,
		voltageDecimals:   1,
	}

	// BK1688B is the 18V / 20A model.
	BK1688B = &Variant{
		model:             "BK1688B",
		nominalMaxVoltage: 18,
		nominalMaxCurrent: 20,
		currentDecimals:   1,
		voltageDecimals:   1,
	}
)

var registry = [...]*Variant{BK1685B, BK1687B, BK1688B}

// detectBand is how far above its nominal rating a supply may report its
// maximum voltage and still be recognised.
const detectBand = 10

func (v *Variant) Model() string            { return v.model }
func (v *Variant) NominalMaxVoltage() int   { return v.nominalMaxVoltage }
func (v *Variant) NominalMaxCurrent() int   { return v.nominalMaxCurrent }
func (v *Variant) CurrentDecimals() int     { return v.currentDecimals }
func (v *Variant) VoltageDecimals() int     { return v.voltageDecimals }
func (v *Variant) String() string           { return v.model }
func (v *Variant) voltageFormat() ArgFormat { return ArgFormat{v.voltageDecimals, 3} }
func (v *Variant) currentFormat() ArgFormat { return ArgFormat{v.currentDecimals, 3} }

// Variants returns the known models in detection order.
func Variants() []*Variant {
	out := make([]*Variant, len(registry))
	copy(out, registry[:])
	return out
}

// LookupVariant finds a model by name, ignoring case.
func LookupVariant(model string) (*Variant, bool) {
	for _, v := range registry {
		if strings.EqualFold(v.model, model) {
			return v, true
		}
	}
	return nil, false
}

// VariantForMaxVoltage maps a reported maximum voltage to a model. Each
// model accepts [nominal, nominal+10). Returns nil when no band matches.
func VariantForMaxVoltage(voltage float64) *Variant {
	for _, v := range registry {
		nominal := float64(v.nominalMaxVoltage)
		if voltage >= nominal && voltage < nominal+detectBand {
			return v
		}
	}
	return nil
}
