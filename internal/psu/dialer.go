package psu

import (
	"errors"
	"time"

	"go.bug.st/serial"
)

const (
	BAUD         = 9600
	READ_TIMEOUT = time.Second
)

// ErrNoPort is returned by SerialDialer when no port path is configured.
var ErrNoPort = errors.New("no serial port configured")

// SerialDialer opens the supply's USB serial port.
type SerialDialer struct {
	PortPath    string
	BaudRate    int
	ReadTimeout time.Duration
}

func (d *SerialDialer) Dial(repeat bool) (Conn, error) {
	if d.PortPath == "" {
		return nil, &DialError{Err: ErrNoPort}
	}
	if d.BaudRate <= 0 {
		d.BaudRate = BAUD
	}
	if d.ReadTimeout <= 0 {
		d.ReadTimeout = READ_TIMEOUT
	}

	if repeat {
		debugLog("opening %s", d.PortPath)
	} else {
		infoLog("opening %s at %d baud", d.PortPath, d.BaudRate)
	}

	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.PortPath, mode)
	if err != nil {
		return nil, &DialError{Port: d.PortPath, Err: err}
	}
	// A silent supply must come back as a zero-byte read, not block forever.
	if err := port.SetReadTimeout(d.ReadTimeout); err != nil {
		port.Close()
		return nil, &DialError{Port: d.PortPath, Err: err}
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, &DialError{Port: d.PortPath, Err: err}
	}

	infoLog("%s opened", d.PortPath)
	return port, nil
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
