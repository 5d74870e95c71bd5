package psu

import (
	"math"
	"strconv"
)

// ArgFormat is a fixed-width, zero-padded, unsigned decimal field.
// The rightmost Decimals of the Digits characters are the fractional part.
type ArgFormat struct {
	Decimals int
	Digits   int
}

// Fixed formats that do not depend on the model.
var (
	flagFormat   = ArgFormat{Decimals: 0, Digits: 1}
	statusFormat = ArgFormat{Decimals: 2, Digits: 4}
	capsVFormat  = ArgFormat{Decimals: 1, Digits: 3}
)

// maxDigits is the widest field whose values all fit a uint64.
const maxDigits = 19

func (f ArgFormat) valid() bool {
	return f.Digits > 0 && f.Digits <= maxDigits && f.Decimals >= 0 && f.Decimals <= f.Digits
}

func (f ArgFormat) factor() float64 {
	return math.Pow10(f.Decimals)
}

// Max is the largest value the field can hold.
func (f ArgFormat) Max() float64 {
	return (math.Pow10(f.Digits) - 1) / f.factor()
}

// Encode renders value as exactly Digits ASCII digits.
func (f ArgFormat) Encode(value float64) (string, error) {
	b, err := f.Append(make([]byte, 0, f.Digits), value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Append appends the encoded field to b. On error b is returned untouched.
// A format wider than 19 digits, or with Decimals outside [0, Digits],
// rejects every value.
func (f ArgFormat) Append(b []byte, value float64) ([]byte, error) {
	if !f.valid() || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 || value > f.Max() {
		return b, &ValueUnrepresentableError{Value: value}
	}

	// math.Round is half away from zero, which is what the firmware expects.
	n := uint64(math.Round(value * f.factor()))
	s := strconv.FormatUint(n, 10)
	if len(s) > f.Digits {
		return b, &ValueUnrepresentableError{Value: value}
	}
	for i := len(s); i < f.Digits; i++ {
		b = append(b, '0')
	}
	return append(b, s...), nil
}

// Decode parses exactly Digits ASCII digits.
func (f ArgFormat) Decode(raw []byte) (float64, error) {
	if len(raw) != f.Digits {
		return 0, malformed("field length", raw)
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, malformed("non-digit in field", raw)
		}
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, malformed("unparsable field", raw)
	}
	return float64(n) / f.factor(), nil
}
