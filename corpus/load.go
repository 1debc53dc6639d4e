package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/josiah-wolf-oberholtzer/archon/errs"
)

// Corpus is the loaded-once, immutable aggregate of every Partition plus
// the per-feature statistics used to build RangeSets.
type Corpus struct {
	Partitions []Partition
	Ranges     RangeSet
	Root       string // directory audio file paths are relative to
}

type jsonRange struct {
	Minimum float64 `json:"minimum"`
	Mean    float64 `json:"mean"`
	Maximum float64 `json:"maximum"`
}

func (r jsonRange) toRange() Range {
	return Range{Minimum: r.Minimum, Mean: r.Mean, Maximum: r.Maximum}
}

type jsonPartition struct {
	Path       string    `json:"path"`
	Digest     string    `json:"digest"`
	StartFrame int64     `json:"start_frame"`
	FrameCount int64     `json:"frame_count"`
	Centroid   float64   `json:"centroid"`
	F0         float64   `json:"f0"`
	Flatness   float64   `json:"flatness"`
	IsVoiced   bool      `json:"is_voiced"`
	MFCC       []float64 `json:"mfcc"`
	RMS        float64   `json:"rms"`
	Rolloff    float64   `json:"rolloff"`
}

type jsonCorpus struct {
	Partitions []jsonPartition      `json:"partitions"`
	Statistics map[string]jsonRange `json:"statistics"`
}

var requiredStatistics = []string{"centroid", "f0", "flatness", "rms", "rolloff"}

// partitionOrderNonDescending reports whether b does not precede a in the
// (path, start_frame) ordering the corpus file must be sorted by (spec.md
// 6). Equal path, non-decreasing start_frame counts as non-descending.
func partitionOrderNonDescending(a, b jsonPartition) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	return a.StartFrame <= b.StartFrame
}

// Load reads and validates a corpus descriptor file. The file's parent
// directory becomes the corpus root that relative audio paths resolve
// against (spec.md 6: "its parent is corpus root for audio files").
func Load(path string) (*Corpus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus file %q: %w", path, err)
	}

	var doc jsonCorpus
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing corpus file %q: %w: %v", path, errs.ErrParse, err)
	}

	if len(doc.Partitions) == 0 {
		return nil, fmt.Errorf("corpus file %q has no partitions: %w", path, errs.ErrConfig)
	}

	for _, feature := range requiredStatistics {
		if _, ok := doc.Statistics[feature]; !ok {
			return nil, fmt.Errorf("corpus file %q missing statistics for %q: %w", path, feature, errs.ErrConfig)
		}
	}

	ranges := RangeSet{
		Centroid: doc.Statistics["centroid"].toRange(),
		F0:       doc.Statistics["f0"].toRange(),
		Flatness: doc.Statistics["flatness"].toRange(),
		RMS:      doc.Statistics["rms"].toRange(),
		Rolloff:  doc.Statistics["rolloff"].toRange(),
	}

	seen := make(map[string]struct{}, len(doc.Partitions))
	partitions := make([]Partition, 0, len(doc.Partitions))
	var prev *jsonPartition
	for i, jp := range doc.Partitions {
		if jp.Digest == "" {
			return nil, fmt.Errorf("corpus file %q has a partition with an empty digest: %w", path, errs.ErrConfig)
		}
		if _, dup := seen[jp.Digest]; dup {
			return nil, fmt.Errorf("corpus file %q has duplicate digest %q: %w", path, jp.Digest, errs.ErrConfig)
		}
		seen[jp.Digest] = struct{}{}

		if prev != nil && !partitionOrderNonDescending(*prev, jp) {
			return nil, fmt.Errorf(
				"corpus file %q is not sorted by (path, start_frame) at index %d: %w",
				path, i, errs.ErrConfig)
		}
		prev = &doc.Partitions[i]

		partitions = append(partitions, Partition{
			Path:          jp.Path,
			Digest:        jp.Digest,
			StartingFrame: jp.StartFrame,
			FrameCount:    jp.FrameCount,
			Centroid:      jp.Centroid,
			F0:            jp.F0,
			Flatness:      jp.Flatness,
			IsVoiced:      jp.IsVoiced,
			MFCC:          jp.MFCC,
			RMS:           jp.RMS,
			Rolloff:       jp.Rolloff,
		})
	}

	return &Corpus{
		Partitions: partitions,
		Ranges:     ranges,
		Root:       filepath.Dir(path),
	}, nil
}
