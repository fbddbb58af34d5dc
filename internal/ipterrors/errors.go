// Package ipterrors defines the daemon's error kinds, per spec.md §7.
package ipterrors

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Use errors.Is against these to classify a returned error.
var (
	ErrTransportFailure  = errors.New("transport failure")
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrUnsupportedDevice = errors.New("unsupported device")
)

// kindError wraps a sentinel kind with a descriptive message and, for
// transport failures, the underlying cause.
type kindError struct {
	kind error
	msg  string
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	if e.msg != "" {
		return fmt.Sprintf("%s: %s", e.kind, e.msg)
	}
	return e.kind.Error()
}

func (e *kindError) Unwrap() []error {
	if e.err != nil {
		return []error{e.kind, e.err}
	}
	return []error{e.kind}
}

// TransportFailure wraps a read/ioctl error. Recoverable via retry with
// backoff; the daemon loop treats it as fatal after N consecutive
// occurrences.
func TransportFailure(cause error) error {
	return &kindError{kind: ErrTransportFailure, err: cause}
}

// MalformedFrame reports a parse error confined to a single report. The
// daemon loop discards the offending report and continues.
func MalformedFrame(msg string) error {
	return &kindError{kind: ErrMalformedFrame, msg: msg}
}

// InvalidConfig reports a start-up configuration problem: missing screen
// dimensions, an unrecognized neutral algorithm, and the like.
func InvalidConfig(msg string) error {
	return &kindError{kind: ErrInvalidConfig, msg: msg}
}

// UnsupportedDevice reports a descriptor lacking the reports the daemon
// requires (a touch-data or mode-set report).
func UnsupportedDevice(msg string) error {
	return &kindError{kind: ErrUnsupportedDevice, msg: msg}
}
