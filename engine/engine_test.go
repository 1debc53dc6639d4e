package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/josiah-wolf-oberholtzer/archon/buffers"
	"github.com/josiah-wolf-oberholtzer/archon/corpus"
	"github.com/josiah-wolf-oberholtzer/archon/dsp"
	"github.com/josiah-wolf-oberholtzer/archon/index"
	"github.com/josiah-wolf-oberholtzer/archon/window"
)

type fakeTxn struct{}

func (fakeTxn) Release() {}

type fakeClock struct {
	mu      sync.Mutex
	running bool
}

func (c *fakeClock) Start() { c.mu.Lock(); c.running = true; c.mu.Unlock() }
func (c *fakeClock) Stop()  { c.mu.Lock(); c.running = false; c.mu.Unlock() }
func (c *fakeClock) Now() float64 { return 0 }
func (c *fakeClock) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

type fakeBridge struct {
	mu          sync.Mutex
	running     bool
	nextBuf     int32
	nextNode    int32
	addSynthLog []string
	clock       *fakeClock
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{clock: &fakeClock{}}
}

func (b *fakeBridge) Boot(int, int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	return nil
}
func (b *fakeBridge) Quit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	return nil
}
func (b *fakeBridge) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
func (b *fakeBridge) At(float64) dsp.TxnGuard { return fakeTxn{} }
func (b *fakeBridge) AddBuffer(int, string, int64, int64) (dsp.BufferHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextBuf++
	return dsp.BufferHandle(b.nextBuf), nil
}
func (b *fakeBridge) FreeBuffer(dsp.BufferHandle) error { return nil }
func (b *fakeBridge) AddSynth(blueprintID string, kwargs map[string]any) (dsp.NodeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextNode++
	b.addSynthLog = append(b.addSynthLog, blueprintID)
	return dsp.NodeHandle(b.nextNode), nil
}
func (b *fakeBridge) RegisterOscCallback(dsp.Address, dsp.Handler) (dsp.CallbackHandle, error) {
	return dsp.CallbackHandle(1), nil
}
func (b *fakeBridge) Unregister(dsp.CallbackHandle) error { return nil }
func (b *fakeBridge) Clock() dsp.Clock                    { return b.clock }

func (b *fakeBridge) synthCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.addSynthLog)
}

func singlePartitionIndex(t *testing.T) *index.Index {
	t.Helper()
	c := &corpus.Corpus{
		Partitions: []corpus.Partition{
			{Path: "a.wav", Digest: "A", Centroid: 1000, F0: 60, Flatness: 0.1, IsVoiced: true, RMS: -20, Rolloff: 5000, MFCC: make([]float64, 13)},
		},
		Ranges: corpus.RangeSet{
			Centroid: corpus.Range{Minimum: 0, Maximum: 5000},
			F0:       corpus.Range{Minimum: 0, Maximum: 127},
			Flatness: corpus.Range{Minimum: 0, Maximum: 1},
			RMS:      corpus.Range{Minimum: -60, Maximum: 0},
			Rolloff:  corpus.Range{Minimum: 0, Maximum: 10000},
		},
	}
	cfg := corpus.FeatureConfig{UsePitch: true, UseSpectral: true, UseMFCC: true, MFCCCount: 13}
	idx, err := index.New(c, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func matchingTarget() corpus.AnalysisTarget {
	return corpus.AnalysisTarget{
		Centroid: 1000, F0: 60, Flatness: 0.1, IsVoiced: true, RMS: -20, Rolloff: 5000,
		MFCC: make([]float64, 13), K: 1, PatternFlavor: corpus.FlavorBasic,
	}
}

func TestBootServerIdempotent(t *testing.T) {
	bridge := newFakeBridge()
	e := New(bridge, singlePartitionIndex(t), window.New(1000), buffers.New(bridge, ""), Params{}, 1)

	if err := e.BootServer(); err != nil {
		t.Fatal(err)
	}
	if got := bridge.synthCount(); got != 2 {
		t.Fatalf("synth count after first boot = %d, want 2", got)
	}
	if err := e.BootServer(); err != nil {
		t.Fatal(err)
	}
	if got := bridge.synthCount(); got != 2 {
		t.Fatalf("synth count after second boot = %d, want 2 (idempotent)", got)
	}
}

func TestGracefulStopDrainsVoice(t *testing.T) {
	bridge := newFakeBridge()
	cache := buffers.New(bridge, "")
	e := New(bridge, singlePartitionIndex(t), window.New(1000), cache, Params{Polyphony: 0}, 1)

	e.Start()
	e.onAnalysisTarget(matchingTarget())

	if got := e.voiceCount(); got != 1 {
		t.Fatalf("voiceCount = %d, want 1", got)
	}

	done := make(chan struct{})
	go func() {
		e.Stop(true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop(true) did not return")
	}

	if got := e.voiceCount(); got != 0 {
		t.Fatalf("voiceCount after stop = %d, want 0", got)
	}
}

func TestForceStopReleasesVoiceHolderImmediately(t *testing.T) {
	bridge := newFakeBridge()
	cache := buffers.New(bridge, "")
	e := New(bridge, singlePartitionIndex(t), window.New(1000), cache, Params{}, 1)

	e.Start()
	e.onAnalysisTarget(matchingTarget())

	done := make(chan struct{})
	go func() {
		e.Stop(false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop(false) did not return")
	}

	if got := e.voiceCount(); got != 0 {
		t.Fatalf("voiceCount after force stop = %d, want 0", got)
	}
}

func TestPolyphonyCapSkipsEmission(t *testing.T) {
	bridge := newFakeBridge()
	cache := buffers.New(bridge, "")
	e := New(bridge, singlePartitionIndex(t), window.New(1000), cache, Params{Polyphony: 1}, 1)

	e.Start()
	e.onAnalysisTarget(matchingTarget())
	if got := e.voiceCount(); got != 1 {
		t.Fatalf("voiceCount = %d, want 1", got)
	}

	e.onAnalysisTarget(matchingTarget())
	if got := e.voiceCount(); got != 1 {
		t.Fatalf("voiceCount after capacity-exceeding emission = %d, want still 1", got)
	}

	e.Stop(false)
}
