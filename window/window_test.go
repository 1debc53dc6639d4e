package window

import (
	"math"
	"sync"
	"testing"

	"github.com/josiah-wolf-oberholtzer/archon/corpus"
)

func frame(f0 float64, voiced bool) corpus.FeatureFrame {
	return corpus.FeatureFrame{
		Peak: -6, RMS: -12, Centroid: 1000, Flatness: 0.3, Rolloff: 4000,
		F0: f0, IsVoiced: voiced, MFCC: []float64{1, 2, 3},
	}
}

// P3 / I5 — no target before N intakes, a target on and after the Nth.
func TestWarmUp(t *testing.T) {
	w := New(3)

	for i := 0; i < 2; i++ {
		if target, _, _ := w.Emit(); target != nil {
			t.Fatalf("intake %d: expected nil target before warm-up, got %+v", i, target)
		}
		w.Intake(frame(60, true))
	}

	w.Intake(frame(60, true))
	target, _, _ := w.Emit()
	if target == nil {
		t.Fatal("expected a target once warmed up")
	}
}

// S5 — history_size=3, third intake's target equals mean/majority over
// the three frames, with f0 averaged over voiced frames only.
func TestEmitAggregation(t *testing.T) {
	w := New(3)
	w.Intake(frame(60, true))
	w.Intake(frame(-1, false))
	w.Intake(frame(64, true))

	target, _, _ := w.Emit()
	if target == nil {
		t.Fatal("expected a target")
	}

	wantF0 := (60.0 + 64.0) / 2
	if math.Abs(target.F0-wantF0) > 1e-9 {
		t.Errorf("F0 = %v, want %v", target.F0, wantF0)
	}
	if math.Abs(target.Centroid-1000) > 1e-9 {
		t.Errorf("Centroid = %v, want 1000", target.Centroid)
	}
	if math.Abs(target.RMS-(-12)) > 1e-9 {
		t.Errorf("RMS = %v, want -12", target.RMS)
	}
	if !target.IsVoiced {
		t.Error("IsVoiced = false, want true (2/3 majority)")
	}
	for i, v := range target.MFCC {
		if math.Abs(v-float64(i+1)) > 1e-9 {
			t.Errorf("MFCC[%d] = %v, want %v", i, v, i+1)
		}
	}
}

func TestEmitAllUnvoicedYieldsSentinelF0(t *testing.T) {
	w := New(2)
	w.Intake(frame(-1, false))
	w.Intake(frame(-1, false))

	target, _, _ := w.Emit()
	if target == nil {
		t.Fatal("expected a target")
	}
	if target.F0 != corpus.UnvoicedF0 {
		t.Errorf("F0 = %v, want sentinel %v", target.F0, corpus.UnvoicedF0)
	}
}

func TestEmitKeepsSlidingAfterWarmUp(t *testing.T) {
	w := New(2)
	w.Intake(frame(60, true))
	w.Intake(frame(60, true))
	if target, _, _ := w.Emit(); target == nil {
		t.Fatal("expected a target")
	}

	w.Intake(frame(72, true)) // slides the window forward by one
	target, _, _ := w.Emit()
	if target == nil {
		t.Fatal("expected a target after sliding")
	}
	wantF0 := (60.0 + 72.0) / 2
	if math.Abs(target.F0-wantF0) > 1e-9 {
		t.Errorf("F0 = %v, want %v", target.F0, wantF0)
	}
}

func TestDefaultCapacityFallback(t *testing.T) {
	w := New(0)
	if w.Capacity() != DefaultHistorySize {
		t.Errorf("Capacity() = %d, want %d", w.Capacity(), DefaultHistorySize)
	}
}

// Intake runs on the DSP bridge's OSC-listener goroutine while Emit runs
// on the engine's analysis-poller goroutine; both must be safe to call
// concurrently without corrupting the ring buffer (go test -race would
// otherwise flag this).
func TestConcurrentIntakeAndEmitDoNotRace(t *testing.T) {
	w := New(8)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			w.Intake(frame(60, true))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			w.Emit()
		}
	}()

	wg.Wait()
}
