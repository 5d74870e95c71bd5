package psu

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrMalformedResponse matches every framing or field violation on the
	// receive path. Use errors.Is; the concrete value is a *MalformedError.
	ErrMalformedResponse = errors.New("malformed command response")

	// ErrNoResponse is returned when a read produced no bytes. A transport
	// timeout looks the same.
	ErrNoResponse = errors.New("no command response")

	// ErrUnknownVariant is returned when a model-dependent command or
	// response is used before the supply model is known.
	ErrUnknownVariant = errors.New("supply variant unknown")
)

// ValueUnrepresentableError reports a command argument that does not fit
// its field (negative, non-finite or too large).
type ValueUnrepresentableError struct {
	Value float64
}

func (e *ValueUnrepresentableError) Error() string {
	return "unrepresentable value in command: " + strconv.FormatFloat(e.Value, 'g', -1, 64)
}

// MalformedError carries the offending bytes of a bad response.
type MalformedError struct {
	Reason string
	Raw    []byte
}

func malformed(reason string, raw []byte) *MalformedError {
	return &MalformedError{Reason: reason, Raw: append([]byte(nil), raw...)}
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: %s [% X]", ErrMalformedResponse, e.Reason, e.Raw)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// ReadError wraps a transport failure while reading a response.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return "failed to read response: " + e.Err.Error()
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// WriteError wraps a transport failure while writing a command.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return "could not send command: " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// DialError wraps a failure to open the link to the supply.
type DialError struct {
	Port string
	Err  error
}

func (e *DialError) Error() string {
	if e.Port == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + " while opening " + e.Port
}

func (e *DialError) Unwrap() error {
	return e.Err
}
