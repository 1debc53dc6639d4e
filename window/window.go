// Package window implements the Analysis Window (spec.md component C2):
// a fixed-capacity ring buffer over the last N live FeatureFrames that
// aggregates them into an AnalysisTarget once warmed up.
//
// Grounded on the teacher's accumulate-then-emit shape in
// session/chunk_buffer.go (there: samples accumulated until a VAD
// boundary fires a chunk; here: frames accumulated until the ring has
// filled once, then every subsequent Emit call returns a target).
package window

import (
	"sync"
	"time"

	"github.com/josiah-wolf-oberholtzer/archon/corpus"
)

// DefaultHistorySize is the default ring capacity N (spec.md 3, 4.2).
const DefaultHistorySize = 10

// DefaultK is the default neighbour count carried on every emitted target.
const DefaultK = 25

// Bounds are the default sleep bounds (seconds) returned alongside a
// (possibly absent) target; the caller picks a uniform random wait in
// [Min, Max] before polling again.
var (
	DefaultMinSleep = 0 * time.Second
	DefaultMaxSleep = 1 * time.Second
)

// Window is a fixed-capacity ring buffer of FeatureFrames. Intake is
// called from the DSP bridge's OSC-listener goroutine while Emit runs on
// the engine's analysis-poller goroutine, so access is guarded by mu,
// mirroring buffers.Cache's mutex-guarded-struct idiom for a single
// resource shared between those two goroutines.
type Window struct {
	mu sync.Mutex

	frames []corpus.FeatureFrame
	size   int // number of frames written so far, saturating at capacity
	index  int // next write position, mod capacity
	total  int // total intakes since construction (for warm-up, I5/P3)

	minSleep, maxSleep time.Duration
}

// New builds a Window with the given ring capacity. capacity <= 0 falls
// back to DefaultHistorySize.
func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Window{
		frames:   make([]corpus.FeatureFrame, capacity),
		minSleep: DefaultMinSleep,
		maxSleep: DefaultMaxSleep,
	}
}

// Capacity returns N, the configured window size.
func (w *Window) Capacity() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

// Intake writes frame at index % N and advances the write cursor.
func (w *Window) Intake(frame corpus.FeatureFrame) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.frames)
	w.frames[w.index%n] = frame
	w.index++
	w.total++
	if w.size < n {
		w.size++
	}
}

// Emit aggregates the current window into an AnalysisTarget. It returns
// (nil, minSleep, maxSleep) while fewer than N frames have been taken in
// since construction (warm-up, invariant I5); once warmed up it always
// returns a target, even though the window keeps sliding afterward.
func (w *Window) Emit() (*corpus.AnalysisTarget, time.Duration, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.frames)
	if w.total < n {
		return nil, w.minSleep, w.maxSleep
	}

	var sumPeak, sumRMS, sumCentroid, sumFlatness, sumRolloff, sumOnset float64
	var sumF0 float64
	voicedCount := 0
	voicedVotes := 0

	var sumMFCC []float64

	for _, f := range w.frames[:n] {
		sumPeak += f.Peak
		sumRMS += f.RMS
		sumCentroid += f.Centroid
		sumFlatness += f.Flatness
		sumRolloff += f.Rolloff
		if f.IsOnset {
			sumOnset++
		}
		if f.IsVoiced {
			voicedVotes++
			sumF0 += f.F0
			voicedCount++
		}

		if sumMFCC == nil {
			sumMFCC = make([]float64, len(f.MFCC))
		}
		for i, v := range f.MFCC {
			if i < len(sumMFCC) {
				sumMFCC[i] += v
			}
		}
	}

	mfcc := make([]float64, len(sumMFCC))
	for i, v := range sumMFCC {
		mfcc[i] = v / float64(n)
	}

	f0 := corpus.UnvoicedF0
	if voicedCount > 0 {
		f0 = sumF0 / float64(voicedCount)
	}

	target := &corpus.AnalysisTarget{
		Centroid:      sumCentroid / float64(n),
		F0:            f0,
		Flatness:      sumFlatness / float64(n),
		IsVoiced:      float64(voicedVotes)/float64(n) >= 0.5,
		MFCC:          mfcc,
		RMS:           sumRMS / float64(n),
		Rolloff:       sumRolloff / float64(n),
		Peak:          sumPeak / float64(n),
		IsOnsetMean:   sumOnset / float64(n),
		K:             DefaultK,
		PatternFlavor: corpus.FlavorBasic,
	}

	return target, w.minSleep, w.maxSleep
}

// SetSleepBounds overrides the default polling-delay bounds the caller
// should use between successive Emit calls.
func (w *Window) SetSleepBounds(min, max time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.minSleep = min
	w.maxSleep = max
}
