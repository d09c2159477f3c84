package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Callers match them with errors.Is; the *Error value below
// carries the details.
var (
	ErrTransportFailure       = errors.New("transport failure")
	ErrTimeout                = errors.New("transfer timeout")
	ErrShortTransfer          = errors.New("short transfer")
	ErrCommandFailed          = errors.New("command failed")
	ErrBridgeTransport        = errors.New("bridge transport failure")
	ErrShortWrite             = errors.New("short write")
	ErrShortRead              = errors.New("short read")
	ErrFrameInvalid           = errors.New("frame invalid")
	ErrSubDeviceCommandFailed = errors.New("sub-device command failed")
	ErrSampleOutOfRange       = errors.New("sample out of range")
	ErrLineParse              = errors.New("line parse error")
	ErrSessionPrecondition    = errors.New("session precondition failed")
)

// NoCommand marks an Error that is not tied to a protocol command.
const NoCommand = -1

// Error is a failure with enough context to diagnose it from a log line:
// which command, what length was expected and seen, and the status byte.
type Error struct {
	Kind     error
	Op       string
	Command  int // NoCommand if not applicable
	Expected int
	Actual   int
	Status   int // -1 if not applicable
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Command != NoCommand {
		fmt.Fprintf(&b, " (cmd 0x%02x)", e.Command)
	}
	if e.Expected != e.Actual {
		fmt.Fprintf(&b, " expected %d bytes, got %d", e.Expected, e.Actual)
	}
	if e.Status > 0 {
		fmt.Fprintf(&b, " status 0x%02x", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind, so errors.Is(err, ErrFrameInvalid) works
// through any amount of wrapping.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// NewError returns an Error of the given kind with no command context.
func NewError(kind error, op string, err error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Command: NoCommand,
		Status:  -1,
		Err:     err,
	}
}

// CommandError returns an Error tied to a protocol command.
func CommandError(kind error, op string, cmd byte, expected, actual, status int, err error) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		Command:  int(cmd),
		Expected: expected,
		Actual:   actual,
		Status:   status,
		Err:      err,
	}
}

// LengthError returns an Error for a transfer of the wrong size.
func LengthError(kind error, op string, expected, actual int) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		Command:  NoCommand,
		Expected: expected,
		Actual:   actual,
		Status:   -1,
	}
}
