package psu

import (
	"errors"
	"io"
	"sync"
	"time"
)

// WAIT is the default pause between writing a command and reading its
// response, long enough for the supply to buffer the whole frame.
const WAIT = 80 * time.Millisecond

// Conn is the link to one supply.
type Conn interface {
	io.ReadWriteCloser
}

// Dialer opens a Conn. repeat is true when the previous dial failed.
type Dialer interface {
	Dial(repeat bool) (Conn, error)
}

// Supply is a half-duplex session with one power supply. Each exchange is
// exactly one command write followed by exactly one response read.
//
// The connection is opened on first use and dropped after any transport
// or framing failure so the next exchange starts on a fresh link. Failed
// commands are never resent.
type Supply struct {
	Dialer  Dialer
	Variant *Variant
	Wait    time.Duration

	// Observer, when set, is told about every exchange that reached the
	// wire or failed to dial.
	Observer func(function string, d time.Duration, err error)

	mu     sync.Mutex
	conn   Conn
	repeat bool
}

// Name is the model name, or "unknown" before detection.
func (s *Supply) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Variant == nil {
		return "unknown"
	}
	return s.Variant.Model()
}

// CurrentVariant returns the model in use, nil before detection.
func (s *Supply) CurrentVariant() *Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Variant
}

func (s *Supply) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Supply) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close()
}

func (s *Supply) close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Exchange sends cmd and decodes the answer into resp.
func (s *Supply) Exchange(cmd Command, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchange(cmd, resp)
}

func (s *Supply) exchange(cmd Command, resp Response) error {
	if s.Variant == nil {
		if _, ok := resp.(*Capabilities); !ok {
			return ErrUnknownVariant
		}
	}

	// Encode before touching the link: a bad argument never reaches the
	// wire and does not cost the connection.
	tx, err := Serialize(cmd, s.Variant)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.roundTrip(tx, resp)
	if s.Observer != nil {
		s.Observer(cmd.Function(), time.Since(start), err)
	}
	return err
}

func (s *Supply) roundTrip(tx []byte, resp Response) error {
	if s.conn == nil {
		conn, err := s.Dialer.Dial(s.repeat)
		if err != nil {
			s.repeat = true
			return err
		}
		s.conn = conn
		s.repeat = false
	}

	if err := writeFrame(s.conn, tx); err != nil {
		s.drop(errors.Unwrap(err))
		return err
	}

	wait := s.Wait
	if wait <= 0 {
		wait = WAIT
	}
	time.Sleep(wait)

	if err := ReadResponse(s.conn, resp, s.Variant); err != nil {
		if !errors.Is(err, ErrUnknownVariant) {
			s.drop(err)
		}
		return err
	}
	return nil
}

func (s *Supply) drop(cause error) {
	errorLog("closing link after %v", cause)
	s.close()
}

// Detect asks the supply for its capabilities and adopts the model they
// identify. When no model matches, ErrUnknownVariant is returned with the
// capabilities and the configured variant is kept.
func (s *Supply) Detect() (Capabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var caps Capabilities
	if err := s.exchange(GetCapabilities{}, &caps); err != nil {
		return caps, err
	}
	v := caps.Variant()
	if v == nil {
		return caps, ErrUnknownVariant
	}
	if s.Variant != v {
		infoLog("detected %s (max %.1fV %.2fA)", v.Model(), caps.MaxVoltage, caps.MaxCurrent)
	}
	s.Variant = v
	return caps, nil
}

// Apply runs setters in order, each answered by an acknowledgement. Every
// command is encoded before the first is sent, so a rejected argument
// leaves the supply untouched. The first failed exchange stops the rest.
func (s *Supply) Apply(cmds ...Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cmd := range cmds {
		if _, err := Serialize(cmd, s.Variant); err != nil {
			return err
		}
	}
	for _, cmd := range cmds {
		if err := s.exchange(cmd, &Ack{}); err != nil {
			return err
		}
	}
	return nil
}

// ----------------------------------------------------------------------

func (s *Supply) SetVoltage(volts float64) error {
	return s.Exchange(SetVoltage{volts}, &Ack{})
}

func (s *Supply) SetCurrent(amps float64) error {
	return s.Exchange(SetCurrent{amps}, &Ack{})
}

func (s *Supply) SetVoltageLimit(volts float64) error {
	return s.Exchange(SetVoltageLimit{volts}, &Ack{})
}

func (s *Supply) SetCurrentLimit(amps float64) error {
	return s.Exchange(SetCurrentLimit{amps}, &Ack{})
}

func (s *Supply) SetOutput(state OutputState) error {
	return s.Exchange(SetOutput{state}, &Ack{})
}

func (s *Supply) SelectPreset(i PresetIndex) error {
	return s.Exchange(SelectPreset{i}, &Ack{})
}

func (s *Supply) SetPresets(p Presets) error {
	return s.Exchange(SetPresets{p}, &Ack{})
}

func (s *Supply) Settings() (Settings, error) {
	var r Settings
	err := s.Exchange(GetSettings{}, &r)
	return r, err
}

func (s *Supply) Status() (Status, error) {
	var r Status
	err := s.Exchange(GetStatus{}, &r)
	return r, err
}

func (s *Supply) VoltageLimit() (float64, error) {
	var r Voltage
	err := s.Exchange(GetVoltageLimit{}, &r)
	return float64(r), err
}

func (s *Supply) CurrentLimit() (float64, error) {
	var r Current
	err := s.Exchange(GetCurrentLimit{}, &r)
	return float64(r), err
}

// Capabilities reads the hardware maximums without changing the variant.
func (s *Supply) Capabilities() (Capabilities, error) {
	var r Capabilities
	err := s.Exchange(GetCapabilities{}, &r)
	return r, err
}

func (s *Supply) Presets() (Presets, error) {
	var r Presets
	err := s.Exchange(GetPresets{}, &r)
	return r, err
}
