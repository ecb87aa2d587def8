package ptz

import (
	"github.com/juju/errors"
)

// Failure kinds. Every expected failure returned by this module satisfies
// errors.Is against exactly one of them.
const (
	// ErrUnreachable is a transport-level failure: refused, DNS, timeout.
	ErrUnreachable = errors.ConstError("unreachable")
	// ErrUnauthorized is an HTTP 401 that survived the single auth retry.
	ErrUnauthorized = errors.ConstError("unauthorized")
	// ErrProtocolMismatch is a response that does not parse as the attempted dialect.
	ErrProtocolMismatch = errors.ConstError("protocol mismatch")
	// ErrUnsupported is a capability the matched protocol does not implement.
	ErrUnsupported = errors.ConstError("unsupported by this protocol")
	// ErrNotConnected is a command issued on a disconnected session.
	ErrNotConnected = errors.ConstError("not connected")
	// ErrInvalidArgument is malformed configuration or input; it is a hard failure.
	ErrInvalidArgument = errors.ConstError("invalid argument")
)

// Kind returns the failure kind of err, or nil when err is nil or untyped
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []errors.ConstError{
		ErrNotConnected, ErrUnsupported, ErrUnauthorized,
		ErrProtocolMismatch, ErrUnreachable, ErrInvalidArgument,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Unsupportedf builds an ErrUnsupported naming the missing capability
func Unsupportedf(format string, args ...interface{}) error {
	return errors.Annotatef(ErrUnsupported, format, args...)
}

// Mismatchf builds an ErrProtocolMismatch
func Mismatchf(format string, args ...interface{}) error {
	return errors.Annotatef(ErrProtocolMismatch, format, args...)
}

// Invalidf builds an ErrInvalidArgument
func Invalidf(format string, args ...interface{}) error {
	return errors.Annotatef(ErrInvalidArgument, format, args...)
}
