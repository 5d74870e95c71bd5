package psu

import (
	"io"
	"math"
	"math/rand"
	"sync"
	"time"
)

// DemoDialer connects to a simulated supply that speaks the real wire
// protocol. The simulated device keeps its state across redials.
type DemoDialer struct {
	Variant  *Variant // defaults to BK1685B
	LoadOhms float64  // resistive load on the output, defaults to 10

	once sync.Once
	dev  *demoDevice
}

func (d *DemoDialer) Dial(repeat bool) (Conn, error) {
	d.once.Do(func() {
		if d.Variant == nil {
			d.Variant = BK1685B
		}
		if d.LoadOhms <= 0 {
			d.LoadOhms = 10
		}
		d.dev = newDemoDevice(d.Variant, d.LoadOhms)
		infoLog("demo %s ready (%.1f ohm load)", d.Variant.Model(), d.LoadOhms)
	})
	return &demoConn{dev: d.dev}, nil
}

type demoConn struct {
	dev     *demoDevice
	pending []byte
	closed  bool
}

// Write takes one complete command and queues its response. Commands the
// device does not understand are dropped without an answer.
func (c *demoConn) Write(b []byte) (int, error) {
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	c.pending = c.dev.handle(b)
	return len(b), nil
}

// Read hands out the queued response. With nothing queued it returns no
// bytes, like a serial port hitting its read timeout.
func (c *demoConn) Read(b []byte) (int, error) {
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *demoConn) Close() error {
	c.closed = true
	c.pending = nil
	return nil
}

// ----------------------------------------------------------------------

type demoDevice struct {
	mu      sync.Mutex
	variant *Variant
	load    float64
	rng     *rand.Rand

	voltage float64
	current float64
	ovp     float64
	ocp     float64
	on      bool
	presets Presets
	maxV    float64
	maxI    float64
}

func newDemoDevice(v *Variant, load float64) *demoDevice {
	maxV := float64(v.nominalMaxVoltage) + 1
	maxI := float64(v.nominalMaxCurrent) + 0.2
	return &demoDevice{
		variant: v,
		load:    load,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		voltage: 5,
		current: 1,
		ovp:     maxV,
		ocp:     maxI,
		maxV:    maxV,
		maxI:    maxI,
		presets: Presets{
			{Voltage: 3.3, Current: 1},
			{Voltage: 5, Current: 1},
			{Voltage: 12, Current: 2},
		},
	}
}

func (d *demoDevice) handle(cmd []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(cmd) < 5 || cmd[len(cmd)-1] != terminator {
		return nil
	}
	fn := string(cmd[:4])
	args := cmd[4 : len(cmd)-1]
	vf, cf := d.variant.voltageFormat(), d.variant.currentFormat()

	switch fn {
	case "VOLT", "SOVP":
		x, err := vf.Decode(args)
		if err != nil {
			return nil
		}
		if fn == "VOLT" {
			d.voltage = x
		} else {
			d.ovp = x
		}
	case "CURR", "SOCP":
		x, err := cf.Decode(args)
		if err != nil {
			return nil
		}
		if fn == "CURR" {
			d.current = x
		} else {
			d.ocp = x
		}
	case "SOUT":
		x, err := flagFormat.Decode(args)
		if err != nil || x > 1 {
			return nil
		}
		d.on = x == 0
	case "RUNM":
		x, err := flagFormat.Decode(args)
		if err != nil || x >= NumPresets {
			return nil
		}
		p := d.presets[int(x)]
		d.voltage, d.current = p.Voltage, p.Current
	case "PROM":
		var p Presets
		step := vf.Digits + cf.Digits
		if len(args) != step*NumPresets {
			return nil
		}
		for i := range p {
			op, err := parseOperatingPoint(args[i*step:(i+1)*step], d.variant)
			if err != nil {
				return nil
			}
			p[i] = op
		}
		d.presets = p
	case "GETS":
		return demoFrame(appendPoint(nil, vf, cf, OperatingPoint{d.voltage, d.current}))
	case "GETD":
		return demoFrame(d.status())
	case "GOVP":
		return demoFrame(appendField(nil, vf, d.ovp))
	case "GOCP":
		return demoFrame(appendField(nil, cf, d.ocp))
	case "GMAX":
		b := appendField(nil, capsVFormat, d.maxV)
		return demoFrame(appendField(b, cf, d.maxI))
	case "GETM":
		var b []byte
		for i, p := range d.presets {
			if i > 0 {
				b = append(b, terminator)
			}
			b = appendPoint(b, vf, cf, p)
		}
		return demoFrame(b)
	default:
		return nil
	}
	return demoFrame(nil)
}

// status simulates the load: constant voltage until the load would draw
// more than the current setpoint, then constant current.
func (d *demoDevice) status() []byte {
	var v, i float64
	mode := byte('0')
	if d.on {
		v = d.voltage
		i = v / d.load
		if i > d.current {
			i = d.current
			v = i * d.load
			mode = '1'
		}
		if v > d.ovp || i > d.ocp {
			d.on = false
			v, i, mode = 0, 0, '0'
		} else {
			v += (d.rng.Float64() - 0.5) * 0.02
			i += (d.rng.Float64() - 0.5) * 0.002
		}
	}
	b := appendField(nil, statusFormat, v)
	b = appendField(b, statusFormat, i)
	return append(b, mode)
}

func appendPoint(b []byte, vf, cf ArgFormat, p OperatingPoint) []byte {
	b = appendField(b, vf, p.Voltage)
	return appendField(b, cf, p.Current)
}

// appendField clamps x into the field so encoding cannot fail.
func appendField(b []byte, f ArgFormat, x float64) []byte {
	x = math.Min(math.Max(x, 0), f.Max())
	b, _ = f.Append(b, x)
	return b
}

func demoFrame(args []byte) []byte {
	out := make([]byte, 0, len(args)+1+len(ack))
	if len(args) > 0 {
		out = append(append(out, args...), terminator)
	}
	return append(out, ack...)
}
