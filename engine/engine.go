// Package engine implements the Engine (spec.md component C6): it
// orchestrates the Descriptor Index, Analysis Window, Buffer Cache,
// Pattern Scheduler and DSP Bridge into the boot/start/stop/quit
// lifecycle the Harness drives.
//
// Grounded on the original implementation's engine.py for the lifecycle
// method names and ordering (boot_server, start, stop, quit_server, the
// analysis-poller loop, on_analysis_target/on_pattern_player_callback),
// reworked into the teacher's mutex-guarded-map and stopChan/done
// goroutine idiom (ai/engine_manager.go, internal/service/recording.go)
// in place of asyncio tasks and futures.
package engine

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josiah-wolf-oberholtzer/archon/buffers"
	"github.com/josiah-wolf-oberholtzer/archon/corpus"
	"github.com/josiah-wolf-oberholtzer/archon/dsp"
	"github.com/josiah-wolf-oberholtzer/archon/errs"
	"github.com/josiah-wolf-oberholtzer/archon/index"
	"github.com/josiah-wolf-oberholtzer/archon/pattern"
	"github.com/josiah-wolf-oberholtzer/archon/window"
)

const (
	analysisBlueprint = "analysis"
	reverbBlueprint   = "reverb"
)

// Params carries the subset of configuration the engine needs to boot
// the DSP topology and build patterns (spec.md 6's configuration
// parameters, the DSP-topology and synthesis-relevant ones).
type Params struct {
	InputBus, OutputBus     int
	InputCount, OutputCount int
	MFCCCount               int
	PitchMinFrequency       float64
	PitchMaxFrequency       float64
	ReverbMix               float64
	// Polyphony is a soft cap on concurrent voices; 0 means uncapped.
	// Spec-safe default for the open question in spec.md 9: new
	// emissions are skipped (logged) once this many voices are active.
	Polyphony int
}

// Engine is the orchestrator described by spec.md 4.6.
type Engine struct {
	bridge  dsp.Bridge
	index   *index.Index
	window  *window.Window
	buffers *buffers.Cache
	params  Params

	mu      sync.Mutex
	running bool
	voices  map[string]*pattern.Voice

	callbackMu sync.Mutex
	callbacks  []dsp.CallbackHandle

	stopPoller chan struct{}
	pollerDone chan struct{}

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New constructs an Engine wiring together the already-built C1-C5
// collaborators.
func New(bridge dsp.Bridge, idx *index.Index, win *window.Window, cache *buffers.Cache, params Params, seed int64) *Engine {
	return &Engine{
		bridge:  bridge,
		index:   idx,
		window:  win,
		buffers: cache,
		params:  params,
		voices:  make(map[string]*pattern.Voice),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// IsRunning reports whether Start has succeeded and Stop has not since
// been called.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ServerRunning reports whether the DSP server is currently booted
// (BootServer has succeeded and QuitServer has not since torn it down).
// This is distinct from IsRunning, which tracks the analysis-poller's
// running state: the server can stay booted while the poller is stopped,
// and the Harness needs to key ToggleServer off the server's own state.
func (e *Engine) ServerRunning() bool {
	return e.bridge.IsRunning()
}

// BootServer is idempotent: it starts the clock, boots the DSP server
// with the configured channel topology, registers the /analysis and
// /n_end handlers, and, inside one timed transaction, instantiates the
// live-analysis synth and the output reverb (spec.md 4.6).
func (e *Engine) BootServer() error {
	if e.bridge.IsRunning() {
		log.Printf("[engine] server already booted")
		return nil
	}

	e.bridge.Clock().Start()
	if err := e.bridge.Boot(e.params.InputCount, e.params.OutputCount); err != nil {
		return fmt.Errorf("engine: booting DSP server: %w", err)
	}

	analysisHandle, err := e.bridge.RegisterOscCallback("/analysis", e.onAnalysisOSCMessage)
	if err != nil {
		return fmt.Errorf("engine: registering /analysis callback: %w", err)
	}
	nEndHandle, err := e.bridge.RegisterOscCallback("/n_end", e.onNEndOSCMessage)
	if err != nil {
		return fmt.Errorf("engine: registering /n_end callback: %w", err)
	}
	e.callbackMu.Lock()
	e.callbacks = append(e.callbacks, analysisHandle, nEndHandle)
	e.callbackMu.Unlock()

	func() {
		txn := e.bridge.At(e.bridge.Clock().Now())
		defer txn.Release()

		if _, err := e.bridge.AddSynth(analysisBlueprint, map[string]any{
			"in":                            e.params.InputBus,
			"mfcc_count":                    e.params.MFCCCount,
			"pitch_detection_min_frequency": e.params.PitchMinFrequency,
			"pitch_detection_max_frequency": e.params.PitchMaxFrequency,
		}); err != nil {
			log.Printf("[engine] adding analysis synth: %v", err)
		}
		if _, err := e.bridge.AddSynth(reverbBlueprint, map[string]any{
			"in":  e.params.OutputBus,
			"out": e.params.OutputBus,
			"mix": e.params.ReverbMix,
		}); err != nil {
			log.Printf("[engine] adding reverb synth: %v", err)
		}
	}()

	log.Printf("[engine] server booted")
	return nil
}

// Start is idempotent: it marks the engine running and spawns the
// analysis poller.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		log.Printf("[engine] already started")
		return
	}
	e.running = true
	e.stopPoller = make(chan struct{})
	e.pollerDone = make(chan struct{})
	e.mu.Unlock()

	go e.pollAnalysisEngine()
	log.Printf("[engine] started")
}

// Stop is idempotent. When graceful, every active voice is asked to
// stop and Stop waits for each to resolve its completion promise before
// returning. When not graceful, every active voice's buffer holdings
// are force-released immediately and Stop does not wait on playback
// winding down (spec.md 4.6, 5's cancellation model).
func (e *Engine) Stop(graceful bool) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		log.Printf("[engine] already stopped")
		return
	}
	e.running = false
	close(e.stopPoller)
	pollerDone := e.pollerDone

	active := make(map[string]*pattern.Voice, len(e.voices))
	for id, v := range e.voices {
		active[id] = v
	}
	e.mu.Unlock()

	<-pollerDone

	if graceful {
		for _, v := range active {
			v.Stop()
		}
		for _, v := range active {
			<-v.Done()
		}
	} else {
		for id, v := range active {
			v.Stop()
			if err := e.buffers.Decrement(buffers.Holder(id), true); err != nil && !errors.Is(err, errs.ErrNotFound) {
				log.Printf("[engine] force-releasing voice %s: %v", id, err)
			}
		}
	}

	e.mu.Lock()
	e.voices = make(map[string]*pattern.Voice)
	e.mu.Unlock()

	log.Printf("[engine] stopped (graceful=%v)", graceful)
}

// QuitServer stops the engine, unregisters the OSC handlers, quits the
// DSP server and stops the clock.
func (e *Engine) QuitServer(graceful bool) error {
	e.Stop(graceful)

	e.callbackMu.Lock()
	callbacks := e.callbacks
	e.callbacks = nil
	e.callbackMu.Unlock()
	for _, cb := range callbacks {
		if err := e.bridge.Unregister(cb); err != nil {
			log.Printf("[engine] unregistering callback: %v", err)
		}
	}

	if err := e.bridge.Quit(); err != nil {
		return fmt.Errorf("engine: quitting DSP server: %w", err)
	}
	e.bridge.Clock().Stop()
	log.Printf("[engine] server quit")
	return nil
}

func (e *Engine) pollAnalysisEngine() {
	defer close(e.pollerDone)
	log.Printf("[engine] analysis poller starting")
	for {
		select {
		case <-e.stopPoller:
			log.Printf("[engine] analysis poller exiting")
			return
		default:
		}

		target, minSleep, maxSleep := e.window.Emit()
		if target != nil {
			e.onAnalysisTarget(*target)
		}

		select {
		case <-time.After(e.sleepBetween(minSleep, maxSleep)):
		case <-e.stopPoller:
			log.Printf("[engine] analysis poller exiting")
			return
		}
	}
}

func (e *Engine) sleepBetween(min, max time.Duration) time.Duration {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	if max <= min {
		return min
	}
	return min + time.Duration(e.rng.Int63n(int64(max-min)))
}

func (e *Engine) nextSeed() int64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Int63()
}

func (e *Engine) voiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

// onAnalysisTarget implements spec.md 4.6's five-step emission: query the
// index, allocate buffers for the matched entries inside one timed
// transaction, build a pattern, and play it, tracking the resulting
// Voice.
func (e *Engine) onAnalysisTarget(target corpus.AnalysisTarget) {
	if e.params.Polyphony > 0 && e.voiceCount() >= e.params.Polyphony {
		log.Printf("[engine] at polyphony capacity (%d); skipping emission", e.params.Polyphony)
		return
	}

	matches, err := e.index.Query(target, target.K)
	if err != nil {
		log.Printf("[engine] querying index: %v", err)
		return
	}
	if len(matches) == 0 {
		log.Printf("[engine] no entries found for target")
		return
	}

	id := uuid.NewString()
	holder := buffers.Holder(id)

	partitions := make([]corpus.Partition, len(matches))
	for i, m := range matches {
		partitions[i] = m.Partition
	}

	var handles []dsp.BufferHandle
	func() {
		txn := e.bridge.At(e.bridge.Clock().Now())
		defer txn.Release()
		handles = e.buffers.IncrementMultiple(partitions, holder)
	}()

	if len(handles) == 0 {
		log.Printf("[engine] every buffer allocation failed for %s; voice not started", id)
		return
	}

	p, err := pattern.Emit(target, handles, e.params.OutputBus, e.nextSeed())
	if err != nil {
		if errors.Is(err, errs.ErrEmptyBufferList) {
			log.Printf("[engine] empty buffer list for %s; voice not started", id)
		} else {
			log.Printf("[engine] building pattern for %s: %v", id, err)
		}
		if derr := e.buffers.Decrement(holder, true); derr != nil {
			log.Printf("[engine] releasing abandoned buffers for %s: %v", id, derr)
		}
		return
	}

	voice := p.Play(id, e.bridge.Clock(), e.onPatternEvent)

	e.mu.Lock()
	e.voices[id] = voice
	e.mu.Unlock()

	log.Printf("[engine] voice started: %s", id)
}

// onPatternEvent is the pattern.EventCallback the Engine hands every
// Voice: on a note's Start it instantiates the synth and increments the
// buffer cache for the node it spawned; on the voice's terminal Stop it
// decrements the voice's own holder and forgets the voice.
func (e *Engine) onPatternEvent(voice *pattern.Voice, at float64, ev pattern.Event) {
	switch ev.Priority {
	case pattern.PriorityStart:
		var nodeHandle dsp.NodeHandle
		var addErr error
		func() {
			txn := e.bridge.At(at)
			defer txn.Release()
			nodeHandle, addErr = e.bridge.AddSynth(ev.BlueprintID, ev.Kwargs)
		}()
		if addErr != nil {
			log.Printf("[engine] instantiating synth for voice %s: %v", voice.ID, addErr)
			return
		}
		bufferID, ok := ev.Kwargs["buffer_id"].(dsp.BufferHandle)
		if !ok {
			return
		}
		holder := nodeHolder(nodeHandle)
		if _, err := e.buffers.Increment(bufferID, holder); err != nil {
			log.Printf("[engine] referencing buffer for node %v: %v", nodeHandle, err)
		}

	case pattern.PriorityStop:
		func() {
			txn := e.bridge.At(at)
			defer txn.Release()
			if err := e.buffers.Decrement(buffers.Holder(voice.ID), true); err != nil && !errors.Is(err, errs.ErrNotFound) {
				log.Printf("[engine] releasing voice %s: %v", voice.ID, err)
			}
		}()
		e.mu.Lock()
		delete(e.voices, voice.ID)
		e.mu.Unlock()
		log.Printf("[engine] voice stopped: %s", voice.ID)
	}
}

func nodeHolder(handle dsp.NodeHandle) buffers.Holder {
	return buffers.Holder(fmt.Sprintf("node-%d", handle))
}
