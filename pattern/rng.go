package pattern

import "math/rand"

// newRNG builds a per-voice seeded source (design note: "one seedable RNG
// per voice for reproducible tests; do not share a global RNG"), grounded
// on the pack's rand.Float64/rand.Int63n style of drawing uniform values
// (doismellburning-samoyed/src/multi_modem.go, other_examples' midi-mixer
// audio-engine.go) but never reaching for the shared global source those
// files use.
func newRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// uniform draws a uniform float64 in [min, max).
func uniform(r *rand.Rand, min, max float64) float64 {
	return min + r.Float64()*(max-min)
}

// intRange draws a uniform int in [min, max] inclusive.
func intRange(r *rand.Rand, min, max int) int {
	return min + r.Intn(max-min+1)
}

// chooseNoRepeat picks an index in [0, n) that differs from prev whenever
// n > 1, implementing the "choice pattern guarantees that consecutive
// draws never pick the same index when more than one option exists"
// requirement (spec.md 4.4). prev < 0 means there is no prior draw to
// avoid.
func chooseNoRepeat(r *rand.Rand, n int, prev int) int {
	if n <= 1 {
		return 0
	}
	for {
		idx := r.Intn(n)
		if idx != prev {
			return idx
		}
	}
}

// powerOfTwoOverlap picks one of a small fixed set of power-of-two overlap
// factors (spec.md 4.4's Warp flavor).
func powerOfTwoOverlap(r *rand.Rand) int {
	options := []int{1, 2, 4, 8, 16}
	return options[r.Intn(len(options))]
}
