// Package errs collects the engine's sentinel error kinds (spec section
// 7's error taxonomy), each wrapped with context via fmt.Errorf("...: %w")
// at the call site and checked by callers with errors.Is.
package errs

import "errors"

var (
	// ErrConfig marks invalid configuration: bad feature-subset flags,
	// missing corpus statistics, an empty corpus. Fatal at startup.
	ErrConfig = errors.New("config error")

	// ErrParse marks a malformed corpus file. Fatal at startup.
	ErrParse = errors.New("parse error")

	// ErrInvariant marks a broken internal invariant: mismatched
	// FeatureVector dimensions, refcount underflow. Indicates a bug.
	ErrInvariant = errors.New("invariant error")

	// ErrIo marks a corpus audio file unreadable at buffer-load time.
	// Non-fatal: the failing allocation is abandoned for that Partition.
	ErrIo = errors.New("io error")

	// ErrNotFound marks a decrement against an unknown holder. Non-fatal:
	// logged and ignored to tolerate spurious node-end messages.
	ErrNotFound = errors.New("not found")

	// ErrEmptyBufferList marks a pattern scheduler call with no buffers.
	// The voice is not started.
	ErrEmptyBufferList = errors.New("empty buffer list")

	// ErrDspTransport marks a lost connection to the DSP server. No code
	// in this module returns it, and the engine does not stop itself on a
	// lost connection.
	ErrDspTransport = errors.New("dsp transport error")
)
