// Package pattern implements the Pattern Scheduler (spec.md component C4):
// it turns one AnalysisTarget plus a list of allocated buffers into a
// stochastic, seeded sequence of timed note events, and drives that
// sequence as a cooperative playback task (Voice).
//
// Grounded on the teacher's channel-driven goroutine loop shape
// (internal/service/recording.go's stopChan/done pattern) for the Voice
// state machine, and on the corpus's own AnalysisTarget.PatternFlavor tag
// for dispatch, per design note 9's preference for a tagged match over a
// class hierarchy of flavor types.
package pattern

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/josiah-wolf-oberholtzer/archon/corpus"
	"github.com/josiah-wolf-oberholtzer/archon/dsp"
	"github.com/josiah-wolf-oberholtzer/archon/errs"
)

// Priority orders events that land at the same scheduled time: Start
// events are always applied before Stop (spec.md 4.4).
type Priority int

const (
	PriorityStart Priority = iota
	PriorityStop
)

func (p Priority) String() string {
	if p == PriorityStop {
		return "stop"
	}
	return "start"
}

// Event is one scheduled occurrence in a Pattern: a synth to instantiate
// (Start) or the pattern's terminal marker (Stop).
type Event struct {
	Priority    Priority
	BlueprintID string
	Kwargs      map[string]any
}

// scheduled pairs an Event with the wait, relative to the previous
// scheduled event, that the player must observe before firing it.
type scheduled struct {
	wait  time.Duration
	event Event
}

// Pattern is the finite note sequence emitted for one AnalysisTarget. Its
// steps are all PriorityStart note events; the terminal PriorityStop event
// that spec.md 4.6's "On Stop of the voice" responds to is not a pattern
// step at all, but the Voice player's own completion signal (see Play),
// since it marks the end of the whole pattern rather than any one note.
type Pattern struct {
	Flavor corpus.PatternFlavor
	steps  []scheduled
}

// Len reports how many note events make up the pattern.
func (p *Pattern) Len() int {
	return len(p.steps)
}

const (
	basicBlueprint     = "basic"
	granulateBlueprint = "granulate"
	warpBlueprint      = "warp"
)

// Emit builds a Pattern for target using the already-allocated buffers
// (in the order C1 returned their owning Partitions), routing every note
// to the out bus. seed drives this pattern's own RNG (design note: one
// seedable RNG per voice, never a shared global one). Emit fails with
// errs.ErrEmptyBufferList if buffers is empty.
func Emit(target corpus.AnalysisTarget, buffers []dsp.BufferHandle, out int, seed int64) (*Pattern, error) {
	if len(buffers) == 0 {
		return nil, fmt.Errorf("pattern: building %s pattern: %w", target.PatternFlavor, errs.ErrEmptyBufferList)
	}

	rng := newRNG(seed)

	var notes []scheduled
	switch target.PatternFlavor {
	case corpus.FlavorGranulate:
		notes = buildGranulate(rng, buffers, out)
	case corpus.FlavorWarp:
		notes = buildWarp(rng, buffers, out)
	default:
		notes = buildBasic(rng, buffers, out)
	}

	return &Pattern{Flavor: target.PatternFlavor, steps: notes}, nil
}

// commonKwargs builds the kwargs shared by every flavor (spec.md 4.4:
// "kwargs (including buffer_id, out, gain, panning, delta, duration, plus
// flavor-specific params)").
func commonKwargs(handle dsp.BufferHandle, out int, gain, panning, delta, duration float64) map[string]any {
	return map[string]any{
		"buffer_id": handle,
		"out":       out,
		"gain":      gain,
		"panning":   panning,
		"delta":     delta,
		"duration":  duration,
	}
}

func buildBasic(rng *rand.Rand, buffers []dsp.BufferHandle, out int) []scheduled {
	iterations := intRange(rng, 5, 25)
	steps := make([]scheduled, 0, iterations)

	prev := -1
	for i := 0; i < iterations; i++ {
		idx := chooseNoRepeat(rng, len(buffers), prev)
		prev = idx

		delta := uniform(rng, 0, 0.25)
		kwargs := commonKwargs(
			buffers[idx], out,
			uniform(rng, -24, 0),
			uniform(rng, -1, 1),
			delta,
			0,
		)
		steps = append(steps, scheduled{
			wait: durationFromSeconds(delta),
			event: Event{
				Priority:    PriorityStart,
				BlueprintID: basicBlueprint,
				Kwargs:      kwargs,
			},
		})
	}
	return steps
}

func buildGranulate(rng *rand.Rand, buffers []dsp.BufferHandle, out int) []scheduled {
	iterations := intRange(rng, 1, 3)
	steps := make([]scheduled, 0, iterations)

	prev := -1
	for i := 0; i < iterations; i++ {
		idx := chooseNoRepeat(rng, len(buffers), prev)
		prev = idx

		delta := uniform(rng, 0, 2)
		kwargs := commonKwargs(
			buffers[idx], out,
			uniform(rng, -24, 0),
			uniform(rng, -1, 1),
			delta,
			0,
		)
		kwargs["time_scaling"] = uniform(rng, 1, 4)
		steps = append(steps, scheduled{
			wait: durationFromSeconds(delta),
			event: Event{
				Priority:    PriorityStart,
				BlueprintID: granulateBlueprint,
				Kwargs:      kwargs,
			},
		})
	}
	return steps
}

func buildWarp(rng *rand.Rand, buffers []dsp.BufferHandle, out int) []scheduled {
	iterations := intRange(rng, 1, 5)
	steps := make([]scheduled, 0, iterations)

	prev := -1
	for i := 0; i < iterations; i++ {
		idx := chooseNoRepeat(rng, len(buffers), prev)
		prev = idx

		delta := uniform(rng, 0, 5)
		kwargs := commonKwargs(
			buffers[idx], out,
			uniform(rng, -24, 0),
			uniform(rng, -1, 1),
			delta,
			0,
		)
		kwargs["overlaps"] = powerOfTwoOverlap(rng)
		kwargs["start"] = uniform(rng, 0, 0.25)
		kwargs["stop"] = uniform(rng, 0.75, 1.0)
		kwargs["transposition"] = uniform(rng, -12, 0)
		kwargs["highpass_frequency"] = uniform(rng, 20, 2000)
		steps = append(steps, scheduled{
			wait: durationFromSeconds(delta),
			event: Event{
				Priority:    PriorityStart,
				BlueprintID: warpBlueprint,
				Kwargs:      kwargs,
			},
		})
	}
	return steps
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
