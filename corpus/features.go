package corpus

import "fmt"

// FeatureConfig controls which feature groups a FeatureVector draws from.
// At least one of the three switches must be true.
type FeatureConfig struct {
	UsePitch    bool
	UseSpectral bool
	UseMFCC     bool
	MFCCCount   int
}

// Dimension returns the vector length this configuration produces.
func (c FeatureConfig) Dimension() int {
	d := 0
	if c.UsePitch {
		d++
	}
	if c.UseSpectral {
		d += 4
	}
	if c.UseMFCC {
		d += c.MFCCCount
	}
	return d
}

// Validate returns ErrConfig (via a plain error here; callers wrap with
// errs.ErrConfig) if no feature group is enabled.
func (c FeatureConfig) Validate() error {
	if !c.UsePitch && !c.UseSpectral && !c.UseMFCC {
		return fmt.Errorf("feature config: at least one of use_pitch, use_spectral, use_mfcc must be set")
	}
	if c.UseMFCC && c.MFCCCount <= 0 {
		return fmt.Errorf("feature config: mfcc_count must be positive when use_mfcc is set")
	}
	return nil
}

// FeatureVector is the variable-length real vector built from a Partition
// or an AnalysisTarget under a FeatureConfig. The corpus index and live
// queries must build vectors under the identical configuration so their
// layouts line up.
type FeatureVector []float64

// scalarSource is satisfied by both Partition and AnalysisTarget: it is
// the minimal read surface FeatureVector construction needs.
type scalarSource struct {
	centroid float64
	f0       float64
	flatness float64
	rms      float64
	rolloff  float64
	mfcc     []float64
}

func partitionSource(p Partition) scalarSource {
	return scalarSource{
		centroid: p.Centroid,
		f0:       p.F0,
		flatness: p.Flatness,
		rms:      p.RMS,
		rolloff:  p.Rolloff,
		mfcc:     p.MFCC,
	}
}

func targetSource(t AnalysisTarget) scalarSource {
	return scalarSource{
		centroid: t.Centroid,
		f0:       t.F0,
		flatness: t.Flatness,
		rms:      t.RMS,
		rolloff:  t.Rolloff,
		mfcc:     t.MFCC,
	}
}

// build assembles the vector in the fixed order: pitch, then spectral
// (centroid, flatness, rms, rolloff), then the leading mfcc_count
// coefficients verbatim. rms is passed through un-normalised, preserving
// dB semantics; f0 keeps its -1 sentinel for unvoiced content rather than
// being scaled (scaling a sentinel would pull it into an arbitrary range
// and defeat its purpose of keeping unvoiced queries clustered together).
func build(s scalarSource, ranges RangeSet, cfg FeatureConfig) (FeatureVector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := make(FeatureVector, 0, cfg.Dimension())

	if cfg.UsePitch {
		f0 := s.f0
		if f0 != UnvoicedF0 {
			f0 = ranges.F0.Scale(f0)
		}
		v = append(v, f0)
	}

	if cfg.UseSpectral {
		v = append(v,
			ranges.Centroid.Scale(s.centroid),
			ranges.Flatness.Scale(s.flatness),
			s.rms,
			ranges.Rolloff.Scale(s.rolloff),
		)
	}

	if cfg.UseMFCC {
		n := cfg.MFCCCount
		if n > len(s.mfcc) {
			n = len(s.mfcc)
		}
		v = append(v, s.mfcc[:n]...)
		for len(v) < cfg.Dimension() {
			v = append(v, 0)
		}
	}

	return v, nil
}

// PartitionVector builds the FeatureVector for a corpus Partition.
func PartitionVector(p Partition, ranges RangeSet, cfg FeatureConfig) (FeatureVector, error) {
	return build(partitionSource(p), ranges, cfg)
}

// TargetVector builds the FeatureVector for a live AnalysisTarget.
func TargetVector(t AnalysisTarget, ranges RangeSet, cfg FeatureConfig) (FeatureVector, error) {
	return build(targetSource(t), ranges, cfg)
}
