package odbc

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrUnsupportedType is returned when a value has no wire type mapping.
	ErrUnsupportedType = errors.New("odbc: unsupported value type")
	// ErrTypeMismatch is returned when a value conflicts with a binding that
	// was already fixed by an earlier row.
	ErrTypeMismatch = errors.New("odbc: type mismatch between row values")
	// ErrOverflow is returned when a value does not fit its transfer type.
	ErrOverflow = errors.New("odbc: value out of range")
	// ErrOutOfMemory is returned when a buffer cannot grow to the size required.
	ErrOutOfMemory = errors.New("odbc: out of memory")
	// ErrConnectionClosed is returned when the connection was closed while a
	// call was in progress.
	ErrConnectionClosed = errors.New("odbc: the connection was closed")
	// ErrNotSupported is returned by transports for optional calls they do
	// not implement.
	ErrNotSupported = errors.New("odbc: not supported by the transport")
)

// Error is a diagnostic record reported by the transport. This type
// includes methods for reading the contents of the struct, which allows
// calling programs to check for specific error conditions without having
// to import this package directly.
type Error struct {
	SQLState    string
	NativeError int32
	Message     string
}

// Error returns the diagnostic message.
func (e Error) Error() string {
	if e.SQLState == "" {
		return "odbc: " + e.Message
	}
	return "odbc: [" + e.SQLState + "] " + e.Message
}

// SQLErrorState returns the five character SQLSTATE.
func (e Error) SQLErrorState() string {
	return e.SQLState
}

// SQLErrorNumber returns the driver specific error number.
func (e Error) SQLErrorNumber() int32 {
	return e.NativeError
}

// SQLErrorMessage returns the diagnostic message.
func (e Error) SQLErrorMessage() string {
	return e.Message
}

// SQLErrorClass returns the two character class of the SQLSTATE.
func (e Error) SQLErrorClass() string {
	if len(e.SQLState) < 2 {
		return ""
	}
	return e.SQLState[:2]
}

// CallError wraps a failure reported by a transport call with the name of
// the call.
type CallError struct {
	Call string
	Err  error
}

func (e *CallError) Error() string {
	return e.Call + ": " + e.Err.Error()
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// ParamError locates a marshaling failure. Position and Column are 1-based,
// Row is 0-based and -1 when the failure is not tied to a row.
type ParamError struct {
	Position int
	Row      int
	Err      error
}

func (e *ParamError) Error() string {
	where := "parameter " + strconv.Itoa(e.Position)
	if e.Row >= 0 {
		where = "row " + strconv.Itoa(e.Row) + ", " + where
	}
	return fmt.Sprintf("odbc: %s: %s", where, e.Err.Error())
}

func (e *ParamError) Unwrap() error {
	return e.Err
}

func paramError(position, row int, err error) error {
	var pe *ParamError
	if errors.As(err, &pe) {
		return err
	}
	return &ParamError{Position: position, Row: row, Err: err}
}

func typeMismatch(format string, v ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrTypeMismatch}, v...)...)
}

func overflow(format string, v ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrOverflow}, v...)...)
}

// appendErr combines a cleanup failure with the primary error.
func appendErr(err error, cleanup error) error {
	if cleanup == nil {
		return err
	}
	if err == nil {
		return cleanup
	}
	return multierror.Append(err, cleanup)
}
