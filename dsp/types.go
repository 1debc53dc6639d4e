// Package dsp defines the narrow DSP Bridge capability interface (spec.md
// component C5) the rest of the engine uses to talk to an external audio
// server, plus an OSC-based implementation of it.
package dsp

import "time"

// BufferHandle is an opaque DSP-server identifier for a loaded audio
// segment. Two Partitions with equal digest share one BufferHandle.
type BufferHandle int32

// NodeHandle is an opaque DSP-server identifier for a running synth node.
type NodeHandle int32

// CallbackHandle identifies a registered OSC callback so it can later be
// unregistered.
type CallbackHandle int

// Address is an OSC address pattern, e.g. "/analysis" or "/n_end".
type Address string

// Message is a received OSC message: its address plus a flat argument
// list of float64 and int64 values (spec.md 6's wire layout).
type Message struct {
	Address Address
	Args    []any
}

// Handler processes one inbound Message matching a registered Address
// pattern.
type Handler func(Message)

// TxnGuard is a scoped acquisition of a timed-submission batch. Every
// bridge operation invoked while a TxnGuard is open joins its batch, in
// submission order; whether the batch is scheduled at the guard's time
// depends on the implementation (OSCBridge sends the batch untimed).
// Release must be called exactly once, on every exit path (including
// panics), to flush the batch.
type TxnGuard interface {
	Release()
}

// Clock is a monotonic audio-time source.
type Clock interface {
	Start()
	Stop()
	Now() float64
}

// Bridge is the abstract capability interface the rest of the core uses
// to drive an external DSP server (spec.md 4.5). Implementations must be
// safe for the single event-loop goroutine to call directly and for
// callbacks to be invoked concurrently with it.
type Bridge interface {
	// Boot starts the server process/connection with the given channel
	// topology.
	Boot(inputChannels, outputChannels int) error
	// Quit tears the server down.
	Quit() error
	// IsRunning reports whether Boot has succeeded and Quit has not yet
	// been called.
	IsRunning() bool

	// At opens a timed-submission batch at the given audio-clock time.
	// Callers MUST call Release on the returned guard exactly once.
	At(time float64) TxnGuard

	// AddBuffer requests the server load an audio segment and returns its
	// handle.
	AddBuffer(channelCount int, filePath string, startingFrame, frameCount int64) (BufferHandle, error)
	// FreeBuffer releases a previously loaded buffer.
	FreeBuffer(handle BufferHandle) error

	// AddSynth instantiates a synth from a named blueprint with the given
	// keyword arguments and returns its node handle.
	AddSynth(blueprintID string, kwargs map[string]any) (NodeHandle, error)

	// RegisterOscCallback subscribes handler to every inbound message
	// matching addressPattern.
	RegisterOscCallback(addressPattern Address, handler Handler) (CallbackHandle, error)
	// Unregister cancels a previously registered callback.
	Unregister(handle CallbackHandle) error

	// Clock exposes the bridge's audio-time source.
	Clock() Clock
}

// defaultBootTimeout is a bound for waiting on server readiness at boot.
// OSCBridge.Boot does not read it: Boot does not wait for the server.
const defaultBootTimeout = 10 * time.Second
