package base

import (
	"github.com/cockroachdb/errors"
)

// ErrorKind mirrors the status kinds carried throughout the engine: Ok,
// NotFound, Corruption, NotSupported, InvalidArgument, IOError. Kinds are
// attached to errors as cockroachdb/errors marker errors so callers can
// recover them with errors.Is after the error has been wrapped several
// times on its way up through the call stack.
type ErrorKind int

const (
	KindOk ErrorKind = iota
	KindNotFound
	KindCorruption
	KindNotSupported
	KindInvalidArgument
	KindIOError
)

func (k ErrorKind) String() string {
	switch k {
	case KindOk:
		return "Ok"
	case KindNotFound:
		return "NotFound"
	case KindCorruption:
		return "Corruption"
	case KindNotSupported:
		return "NotSupported"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindIOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// sentinel errors used with errors.Is; each ErrorKind-producing helper below
// wraps one of these so the kind survives wrapping.
var (
	errNotFound        = errors.New("strata: not found")
	errCorruption      = errors.New("strata: corruption")
	errNotSupported    = errors.New("strata: not supported")
	errInvalidArgument = errors.New("strata: invalid argument")
)

// ErrNotFound is returned by Get and by internal readers when a key is
// absent. Callers are free to ignore it.
var ErrNotFound = errNotFound

// CorruptionErrorf reports a Corruption-kind error with a formatted message,
// wrapping the sentinel so IsCorruptionError still reports true after
// further wrapping up the stack.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(errCorruption, format, args...)
}

// IsCorruptionError reports whether err (or any error it wraps) is a
// Corruption-kind error.
func IsCorruptionError(err error) bool {
	return errors.Is(err, errCorruption)
}

// NotSupportedErrorf reports a NotSupported-kind error.
func NotSupportedErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(errNotSupported, format, args...)
}

// InvalidArgumentErrorf reports an InvalidArgument-kind error.
func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(errInvalidArgument, format, args...)
}

// KindOf classifies err into one of the engine's error kinds, defaulting to
// IOError for anything it does not recognise (matching the spec's
// "Foreground operations return their own synchronous errors" rule: any
// error escaping the filesystem layer is treated as an IOError unless it is
// explicitly one of the other kinds).
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindOk
	case errors.Is(err, errNotFound):
		return KindNotFound
	case errors.Is(err, errCorruption):
		return KindCorruption
	case errors.Is(err, errNotSupported):
		return KindNotSupported
	case errors.Is(err, errInvalidArgument):
		return KindInvalidArgument
	default:
		return KindIOError
	}
}
