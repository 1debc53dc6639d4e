package index

import (
	"math"
	"testing"

	"github.com/josiah-wolf-oberholtzer/archon/corpus"
)

func wideRanges() corpus.RangeSet {
	wide := corpus.Range{Minimum: 0, Mean: 5000, Maximum: 10000}
	return corpus.RangeSet{
		Centroid: wide,
		F0:       corpus.Range{Minimum: 0, Mean: 64, Maximum: 127},
		Flatness: corpus.Range{Minimum: 0, Mean: 0.5, Maximum: 1},
		RMS:      corpus.Range{Minimum: -60, Mean: -30, Maximum: 0},
		Rolloff:  wide,
	}
}

func mfcc13(vals ...float64) []float64 {
	out := make([]float64, 13)
	copy(out, vals)
	return out
}

func fullConfig() corpus.FeatureConfig {
	return corpus.FeatureConfig{UsePitch: true, UseSpectral: true, UseMFCC: true, MFCCCount: 13}
}

// S1 — Index self-match.
func TestQuerySelfMatch(t *testing.T) {
	ranges := wideRanges()
	c := &corpus.Corpus{
		Ranges: ranges,
		Partitions: []corpus.Partition{
			{
				Digest: "A", Centroid: 1000, Flatness: 0.1, RMS: -20, Rolloff: 5000,
				F0: 60, IsVoiced: true, MFCC: mfcc13(0.1, 0.2),
			},
			{
				Digest: "B", Centroid: 2000, Flatness: 0.4, RMS: -10, Rolloff: 7000,
				F0: 72, IsVoiced: true, MFCC: mfcc13(0.5, 0.6),
			},
		},
	}

	idx, err := New(c, fullConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	target := corpus.AnalysisTarget{
		Centroid: 1000, Flatness: 0.1, RMS: -20, Rolloff: 5000,
		F0: 60, IsVoiced: true, MFCC: mfcc13(0.1, 0.2), K: 1,
	}

	matches, err := idx.Query(target, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	if matches[0].Partition.Digest != "A" {
		t.Errorf("matched digest = %q, want %q", matches[0].Partition.Digest, "A")
	}
	if matches[0].Distance > 1e-6 {
		t.Errorf("distance = %v, want <= 1e-6", matches[0].Distance)
	}
}

// P1 — every partition self-matches at distance <= 1e-6.
func TestQueryEveryPartitionSelfMatches(t *testing.T) {
	ranges := wideRanges()
	partitions := []corpus.Partition{
		{Digest: "p0", Centroid: 500, Flatness: 0.2, RMS: -40, Rolloff: 2000, F0: -1, MFCC: mfcc13(1, 2, 3)},
		{Digest: "p1", Centroid: 1500, Flatness: 0.6, RMS: -15, Rolloff: 6000, F0: 55, IsVoiced: true, MFCC: mfcc13(4, 5, 6)},
		{Digest: "p2", Centroid: 3000, Flatness: 0.9, RMS: -5, Rolloff: 9000, F0: 80, IsVoiced: true, MFCC: mfcc13(7, 8, 9)},
	}
	c := &corpus.Corpus{Ranges: ranges, Partitions: partitions}

	idx, err := New(c, fullConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, p := range partitions {
		target := corpus.AnalysisTarget{
			Centroid: p.Centroid, Flatness: p.Flatness, RMS: p.RMS, Rolloff: p.Rolloff,
			F0: p.F0, IsVoiced: p.IsVoiced, MFCC: p.MFCC, K: 1,
		}
		matches, err := idx.Query(target, 1)
		if err != nil {
			t.Fatalf("Query(%s): %v", p.Digest, err)
		}
		if matches[0].Partition.Digest != p.Digest {
			t.Errorf("partition %s: best match = %s, want self", p.Digest, matches[0].Partition.Digest)
		}
		if matches[0].Distance > 1e-6 {
			t.Errorf("partition %s: distance = %v, want <= 1e-6", p.Digest, matches[0].Distance)
		}
	}
}

func TestQueryAscendingOrderAndKClamp(t *testing.T) {
	ranges := wideRanges()
	partitions := []corpus.Partition{
		{Digest: "near", Centroid: 1000, Rolloff: 5000, RMS: -20, F0: -1, MFCC: mfcc13()},
		{Digest: "mid", Centroid: 1200, Rolloff: 5200, RMS: -20, F0: -1, MFCC: mfcc13()},
		{Digest: "far", Centroid: 5000, Rolloff: 9000, RMS: -20, F0: -1, MFCC: mfcc13()},
	}
	c := &corpus.Corpus{Ranges: ranges, Partitions: partitions}
	idx, err := New(c, corpus.FeatureConfig{UseSpectral: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	target := corpus.AnalysisTarget{Centroid: 1000, Rolloff: 5000, RMS: -20, F0: -1}

	matches, err := idx.Query(target, 100) // clamp to len(partitions)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("len(matches) = %d, want 3 (clamped)", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Fatalf("matches not ascending: %v", matches)
		}
	}
	if matches[0].Partition.Digest != "near" {
		t.Errorf("nearest = %q, want %q", matches[0].Partition.Digest, "near")
	}
}

// P4 — dimension equals the feature-subset formula.
func TestDimensionFormula(t *testing.T) {
	cases := []struct {
		cfg  corpus.FeatureConfig
		want int
	}{
		{corpus.FeatureConfig{UsePitch: true}, 1},
		{corpus.FeatureConfig{UseSpectral: true}, 4},
		{corpus.FeatureConfig{UseMFCC: true, MFCCCount: 13}, 13},
		{corpus.FeatureConfig{UsePitch: true, UseSpectral: true, UseMFCC: true, MFCCCount: 20}, 25},
	}
	for _, tc := range cases {
		if got := tc.cfg.Dimension(); got != tc.want {
			t.Errorf("Dimension(%+v) = %d, want %d", tc.cfg, got, tc.want)
		}
	}
}

func TestNewRejectsNoFeatureGroups(t *testing.T) {
	c := &corpus.Corpus{
		Ranges:     wideRanges(),
		Partitions: []corpus.Partition{{Digest: "a"}},
	}
	if _, err := New(c, corpus.FeatureConfig{}); err == nil {
		t.Fatal("expected error when no feature group is enabled")
	}
}

func TestNewRejectsEmptyCorpus(t *testing.T) {
	c := &corpus.Corpus{Ranges: wideRanges()}
	if _, err := New(c, fullConfig()); err == nil {
		t.Fatal("expected error for empty corpus")
	}
}

func TestRound6(t *testing.T) {
	if got := round6(1.0000001); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("round6(1.0000001) = %v, want 1.0", got)
	}
}
