package mysequel

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"syscall"

	mysql "github.com/go-sql-driver/mysql"
)

var (
	// ErrClosed is returned by Handle methods after Close.
	ErrClosed = errors.New("mysequel: handle is closed")
	// ErrPingMismatch marks a ping that answered with unexpected rows.
	ErrPingMismatch = errors.New("ping result does not match expected result")
	// ErrForeignConn is returned when SQLPool is asked to execute on a
	// connection it did not hand out.
	ErrForeignConn = errors.New("mysequel: connection does not belong to this pool")
	// ErrNamedPlaceholders is returned when a named parameter set is passed
	// while NamedPlaceholders is off.
	ErrNamedPlaceholders = errors.New("mysequel: named parameters require NamedPlaceholders")
)

// ErrorClass groups driver errors by how callers should react to them.
type ErrorClass int

const (
	ErrClassUnknown ErrorClass = iota
	ErrClassRetryable
	ErrClassConflict
	ErrClassReadonly
	ErrClassConstraint
)

func (c ErrorClass) String() string {
	switch c {
	case ErrClassRetryable:
		return "retryable"
	case ErrClassConflict:
		return "conflict"
	case ErrClassReadonly:
		return "readonly"
	case ErrClassConstraint:
		return "constraint"
	default:
		return "unknown"
	}
}

// Classify maps MySQL error numbers and transport errors to an ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrClassUnknown
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1213, 1205: // deadlock, lock wait timeout
			return ErrClassRetryable
		case 1040, 1203: // too many connections, user connection limit
			return ErrClassRetryable
		case 1290, 1792: // read-only server, read-only transaction
			return ErrClassReadonly
		case 1062, 1022, 1586: // duplicate entry / key
			return ErrClassConflict
		case 1048, 1216, 1217, 1451, 1452, 3819:
			return ErrClassConstraint
		}
		return ErrClassUnknown
	}
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED):
		return ErrClassRetryable
	}
	return ErrClassUnknown
}

// PingFailureKind distinguishes why a connection failed a health sweep.
type PingFailureKind int

const (
	// PingTransportFailure: the ping query itself failed.
	PingTransportFailure PingFailureKind = iota
	// PingAssertionFailure: the ping answered with rows other than expected.
	PingAssertionFailure
)

func (k PingFailureKind) String() string {
	if k == PingAssertionFailure {
		return "assertion"
	}
	return "transport"
}

// PingError is one connection's failure within a health sweep.
type PingError struct {
	Kind   PingFailureKind
	ConnID string
	// Expected and Actual are set for assertion failures.
	Expected Rows
	Actual   Rows
	Err      error
}

func (e *PingError) Error() string {
	return fmt.Sprintf("ping %s failure on connection %s: %v", e.Kind, e.ConnID, e.Err)
}

func (e *PingError) Unwrap() error { return e.Err }

// IsPingAssertion reports whether err is a ping result mismatch.
func IsPingAssertion(err error) bool {
	var pe *PingError
	return errors.As(err, &pe) && pe.Kind == PingAssertionFailure
}

// mysqlErrorCode returns the MySQL error number carried by err, if any.
func mysqlErrorCode(err error) (uint16, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number, true
	}
	return 0, false
}
