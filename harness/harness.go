// Package harness implements the Harness (spec.md component C7): a
// bounded FIFO command queue driving the Engine's lifecycle methods,
// plus POSIX signal handling for graceful and forced shutdown.
//
// Grounded on the original implementation's harness.py command-queue/
// Command.do dispatch loop, reworked into a buffered Go channel drained
// by a single goroutine (the teacher's testrecord/main.go signal.Notify
// idiom supplies the SIGINT/SIGTSTP wiring the Python asyncio loop
// handled with add_signal_handler).
package harness

import (
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/josiah-wolf-oberholtzer/archon/engine"
)

// Command is a sum-typed lifecycle instruction the Harness executes
// sequentially against its Engine (spec.md 4.7).
type Command interface {
	do(h *Harness)
	String() string
}

type bootServerCmd struct{}

func (bootServerCmd) do(h *Harness) {
	if err := h.engine.BootServer(); err != nil {
		log.Printf("[harness] BootServer: %v", err)
	}
}
func (bootServerCmd) String() string { return "BootServer" }

type startEngineCmd struct{}

func (startEngineCmd) do(h *Harness)  { h.engine.Start() }
func (startEngineCmd) String() string { return "StartEngine" }

type stopEngineCmd struct{ graceful bool }

func (c stopEngineCmd) do(h *Harness) { h.engine.Stop(c.graceful) }
func (c stopEngineCmd) String() string {
	return "StopEngine(graceful=" + boolString(c.graceful) + ")"
}

type quitServerCmd struct{ graceful bool }

func (c quitServerCmd) do(h *Harness) {
	if err := h.engine.QuitServer(c.graceful); err != nil {
		log.Printf("[harness] QuitServer: %v", err)
	}
}
func (c quitServerCmd) String() string {
	return "QuitServer(graceful=" + boolString(c.graceful) + ")"
}

type toggleEngineCmd struct{}

func (toggleEngineCmd) do(h *Harness) {
	if h.engine.IsRunning() {
		h.engine.Stop(true)
	} else {
		h.engine.Start()
	}
}
func (toggleEngineCmd) String() string { return "ToggleEngine" }

type toggleServerCmd struct{}

func (toggleServerCmd) do(h *Harness) {
	if h.engine.ServerRunning() {
		if err := h.engine.QuitServer(true); err != nil {
			log.Printf("[harness] QuitServer: %v", err)
		}
	} else if err := h.engine.BootServer(); err != nil {
		log.Printf("[harness] BootServer: %v", err)
	}
}
func (toggleServerCmd) String() string { return "ToggleServer" }

type exitCmd struct{ graceful bool }

func (c exitCmd) do(h *Harness) {
	if err := h.engine.QuitServer(c.graceful); err != nil {
		log.Printf("[harness] QuitServer during exit: %v", err)
	}
	h.exitOnce.Do(func() { close(h.exitSignal) })
}
func (c exitCmd) String() string { return "Exit(graceful=" + boolString(c.graceful) + ")" }

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Command constructors.
func BootServer() Command              { return bootServerCmd{} }
func StartEngine() Command             { return startEngineCmd{} }
func StopEngine(graceful bool) Command { return stopEngineCmd{graceful: graceful} }
func QuitServer(graceful bool) Command { return quitServerCmd{graceful: graceful} }
func ToggleEngine() Command            { return toggleEngineCmd{} }
func ToggleServer() Command            { return toggleServerCmd{} }
func Exit(graceful bool) Command       { return exitCmd{graceful: graceful} }

// queueCapacity bounds the FIFO command queue (spec.md 4.7: "a bounded
// FIFO command queue").
const queueCapacity = 64

// Harness owns the command queue and the one-shot exit signal, and is
// the sole driver of the Engine: every state transition happens on the
// run loop's goroutine, so Engine access is race-free by construction
// (spec.md 5's single-threaded cooperative scheduling model).
type Harness struct {
	engine *engine.Engine

	queue chan Command

	exitOnce   sync.Once
	exitSignal chan struct{}

	sigCh chan os.Signal

	lastSignalMu sync.Mutex
	lastSignal   os.Signal
}

// New constructs a Harness driving e.
func New(e *engine.Engine) *Harness {
	return &Harness{
		engine:     e,
		queue:      make(chan Command, queueCapacity),
		exitSignal: make(chan struct{}),
		sigCh:      make(chan os.Signal, 2),
	}
}

// Enqueue submits a command for sequential execution. It blocks if the
// queue is full.
func (h *Harness) Enqueue(cmd Command) {
	h.queue <- cmd
}

// Run installs signal handlers, enqueues the boot/start sequence, and
// dispatches commands sequentially until Exit is processed.
func (h *Harness) Run() {
	signal.Notify(h.sigCh, syscall.SIGINT, syscall.SIGTSTP)
	defer signal.Stop(h.sigCh)

	go h.watchSignals()

	h.Enqueue(BootServer())
	h.Enqueue(StartEngine())

	log.Printf("[harness] running")
	for {
		select {
		case cmd := <-h.queue:
			log.Printf("[harness] executing %s", cmd)
			cmd.do(h)
		case <-h.exitSignal:
			log.Printf("[harness] exiting")
			return
		}
	}
}

// watchSignals enqueues a graceful Exit on the first SIGINT/SIGTSTP, and
// a forced Exit on a second signal of either kind (spec.md 4.7, 9:
// "force-quit on second signal... spec mandates honouring it").
func (h *Harness) watchSignals() {
	for sig := range h.sigCh {
		h.lastSignalMu.Lock()
		repeated := h.lastSignal != nil
		h.lastSignal = sig
		h.lastSignalMu.Unlock()

		if repeated {
			log.Printf("[harness] second signal (%v) received; forcing quit", sig)
			h.Enqueue(Exit(false))
			return
		}
		log.Printf("[harness] signal (%v) received; quitting gracefully", sig)
		h.Enqueue(Exit(true))
	}
}
