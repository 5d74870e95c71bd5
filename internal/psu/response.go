package psu

import (
	"bytes"
	"errors"
	"io"
)

// Response is the decoded answer to a command. The protocol is not
// self-describing, so the caller picks the Response that matches the
// command it sent.
//
// Every frame is a fixed-width argument block, a carriage return when the
// block is not empty, and the literal "OK\r".
type Response interface {
	// ArgBytes is the size of the argument block, including any carriage
	// returns inside it but not the one that separates it from OK.
	ArgBytes() int

	parseArgs(raw []byte, v *Variant) error
}

var ack = []byte("OK\r")

// FrameSize is the number of bytes on the wire for resp.
func FrameSize(resp Response) int {
	n := resp.ArgBytes()
	if n > 0 {
		n++
	}
	return n + len(ack)
}

// ReadResponse reads one frame with a single Read and decodes it into resp.
// A short read is not retried. resp is only modified on success.
func ReadResponse(r io.Reader, resp Response, v *Variant) error {
	argBytes := resp.ArgBytes()
	total := FrameSize(resp)
	beforeOK := total - len(ack)

	buf := make([]byte, total)
	n, err := r.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return &ReadError{Err: err}
	}
	if n == 0 {
		return ErrNoResponse
	}
	buf = buf[:n]
	debugLog("rx: %q", buf)
	if n != total {
		return malformed("frame length", buf)
	}

	if !bytes.Equal(buf[beforeOK:], ack) {
		return malformed("missing OK", buf)
	}

	args := buf[:beforeOK]
	if argBytes > 0 {
		if args[argBytes] != terminator {
			return malformed("bad separator", buf)
		}
		args = args[:argBytes]
	}
	return resp.parseArgs(args, v)
}

// ----------------------------------------------------------------------

// Ack is an acknowledgement without data, the answer to every setter.
type Ack struct{}

func (*Ack) ArgBytes() int                       { return 0 }
func (*Ack) parseArgs(_ []byte, _ *Variant) error { return nil }

// Voltage is a single voltage, the answer to GetVoltageLimit.
type Voltage float64

func (*Voltage) ArgBytes() int { return 3 }

func (r *Voltage) parseArgs(raw []byte, v *Variant) error {
	if v == nil {
		return ErrUnknownVariant
	}
	x, err := v.voltageFormat().Decode(raw)
	if err != nil {
		return err
	}
	*r = Voltage(x)
	return nil
}

// Current is a single current, the answer to GetCurrentLimit.
type Current float64

func (*Current) ArgBytes() int { return 3 }

func (r *Current) parseArgs(raw []byte, v *Variant) error {
	if v == nil {
		return ErrUnknownVariant
	}
	x, err := v.currentFormat().Decode(raw)
	if err != nil {
		return err
	}
	*r = Current(x)
	return nil
}

// Settings are the configured setpoints, the answer to GetSettings.
type Settings struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
}

func (*Settings) ArgBytes() int { return 6 }

func (r *Settings) parseArgs(raw []byte, v *Variant) error {
	if v == nil {
		return ErrUnknownVariant
	}
	p, err := parseOperatingPoint(raw, v)
	if err != nil {
		return err
	}
	*r = Settings(p)
	return nil
}

// Status is the live output, the answer to GetStatus.
//
// Unlike every other response its fields are four digits with two
// decimals, whatever the model.
type Status struct {
	Voltage float64    `json:"voltage"`
	Current float64    `json:"current"`
	Mode    OutputMode `json:"mode"`
}

func (*Status) ArgBytes() int { return 2*statusFormat.Digits + 1 }

func (r *Status) parseArgs(raw []byte, _ *Variant) error {
	d := statusFormat.Digits
	if len(raw) != 2*d+1 {
		return malformed("status length", raw)
	}
	voltage, err := statusFormat.Decode(raw[:d])
	if err != nil {
		return err
	}
	current, err := statusFormat.Decode(raw[d : 2*d])
	if err != nil {
		return err
	}
	var mode OutputMode
	switch raw[2*d] {
	case '0':
		mode = ConstantVoltage
	case '1':
		mode = ConstantCurrent
	default:
		return malformed("bad output mode", raw)
	}
	*r = Status{Voltage: voltage, Current: current, Mode: mode}
	return nil
}

// Presets are the three stored operating points, the answer to
// GetPresets.
type Presets [NumPresets]OperatingPoint

// three 6-byte points joined by two carriage returns
func (*Presets) ArgBytes() int { return 6*NumPresets + NumPresets - 1 }

func (r *Presets) parseArgs(raw []byte, v *Variant) error {
	if v == nil {
		return ErrUnknownVariant
	}
	chunks := bytes.Split(raw, []byte{terminator})
	if len(chunks) != NumPresets {
		return malformed("preset count", raw)
	}
	var out Presets
	for i, c := range chunks {
		p, err := parseOperatingPoint(c, v)
		if err != nil {
			return err
		}
		out[i] = p
	}
	*r = out
	return nil
}

// Capabilities are the hardware maximums, the answer to GetCapabilities.
//
// Decoding ignores the caller's variant: the model is derived from the
// reported voltage, which is what makes autodetection possible.
type Capabilities struct {
	MaxVoltage float64 `json:"maxVoltage"`
	MaxCurrent float64 `json:"maxCurrent"`
}

func (*Capabilities) ArgBytes() int { return 6 }

func (r *Capabilities) parseArgs(raw []byte, _ *Variant) error {
	if len(raw) != 6 {
		return malformed("capabilities length", raw)
	}
	voltage, err := capsVFormat.Decode(raw[:3])
	if err != nil {
		return err
	}

	// Unidentified models fall back to one decimal.
	currentFormat := ArgFormat{Decimals: 1, Digits: 3}
	if v := VariantForMaxVoltage(voltage); v != nil {
		currentFormat = v.currentFormat()
	}
	current, err := currentFormat.Decode(raw[3:])
	if err != nil {
		return err
	}

	*r = Capabilities{MaxVoltage: voltage, MaxCurrent: current}
	return nil
}

// Variant is the model these capabilities belong to, or nil.
func (c Capabilities) Variant() *Variant {
	return VariantForMaxVoltage(c.MaxVoltage)
}

func parseOperatingPoint(raw []byte, v *Variant) (OperatingPoint, error) {
	vf, cf := v.voltageFormat(), v.currentFormat()
	if len(raw) != vf.Digits+cf.Digits {
		return OperatingPoint{}, malformed("operating point length", raw)
	}
	voltage, err := vf.Decode(raw[:vf.Digits])
	if err != nil {
		return OperatingPoint{}, err
	}
	current, err := cf.Decode(raw[vf.Digits:])
	if err != nil {
		return OperatingPoint{}, err
	}
	return OperatingPoint{Voltage: voltage, Current: current}, nil
}
