package pattern

import (
	"sync"
	"time"

	"github.com/josiah-wolf-oberholtzer/archon/dsp"
)

// EventCallback receives every event a Voice fires: each note's Start, in
// pattern order, and exactly one terminal Stop marking the voice's end
// (spec.md 4.6, invariant I6). at is the DSP clock's time when the event
// fired.
type EventCallback func(voice *Voice, at float64, event Event)

// Voice is a Pattern being played: the cooperative task described in
// design note 9 ("each tick advances the iterator, schedules a note event
// ... and awaits the clock"), modelled here as an explicit goroutine/
// channel state machine rather than hidden coroutine state, grounded on
// the teacher's stopChan/done lifecycle in internal/service/recording.go.
type Voice struct {
	ID      string
	pattern *Pattern

	stopCh chan struct{}
	doneCh chan struct{}

	stopOnce sync.Once // guards closing stopCh
	stopFire sync.Once // guards the terminal Stop callback (I6)
}

// Play starts the pattern's playback task. callback is invoked from the
// voice's own goroutine; implementations must be safe to call from a
// goroutine other than the one that called Play.
func (p *Pattern) Play(id string, clock dsp.Clock, callback EventCallback) *Voice {
	v := &Voice{
		ID:      id,
		pattern: p,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go v.run(clock, callback)
	return v
}

func (v *Voice) run(clock dsp.Clock, callback EventCallback) {
	for _, step := range v.pattern.steps {
		if step.wait > 0 {
			timer := time.NewTimer(step.wait)
			select {
			case <-timer.C:
			case <-v.stopCh:
				timer.Stop()
				v.emitStop(clock, callback)
				return
			}
		} else {
			select {
			case <-v.stopCh:
				v.emitStop(clock, callback)
				return
			default:
			}
		}

		callback(v, clock.Now(), step.event)
	}
	v.emitStop(clock, callback)
}

func (v *Voice) emitStop(clock dsp.Clock, callback EventCallback) {
	v.stopFire.Do(func() {
		callback(v, clock.Now(), Event{Priority: PriorityStop, Kwargs: map[string]any{}})
		close(v.doneCh)
	})
}

// Stop requests early termination. It is idempotent: calling it more than
// once, or after the pattern has already run to completion, has no
// further effect.
func (v *Voice) Stop() {
	v.stopOnce.Do(func() {
		close(v.stopCh)
	})
}

// Done returns a channel that closes once this voice's terminal Stop
// event has been delivered, whether the pattern ran to completion or was
// cancelled early. Callers await it as the voice's completion promise
// (spec.md 3's Voice.completion promise, invariant I6).
func (v *Voice) Done() <-chan struct{} {
	return v.doneCh
}
