// Package config parses the engine's command-line configuration
// (spec.md 6's parameter list), adapted from the teacher's flag-based
// Load() pattern.
package config

import (
	"flag"
	"fmt"

	"github.com/josiah-wolf-oberholtzer/archon/errs"
)

// Config is the full set of runtime parameters the engine needs.
type Config struct {
	AnalysisPath string

	HistorySize int
	MFCCCount   int
	UseMFCC     bool
	UsePitch    bool
	UseSpectral bool

	PitchDetectionMinFrequency float64
	PitchDetectionMaxFrequency float64

	// SilenceThresholdDB is consumed by the offline analysis pipeline;
	// it is parsed here (spec.md 6) but has no effect at runtime.
	SilenceThresholdDB float64

	InputBus     int
	OutputBus    int
	InputCount   int
	OutputCount  int
	InputDevice  string
	OutputDevice string

	Polyphony int
	ReverbMix float64

	DSPSendHost   string
	DSPSendPort   int
	DSPListenAddr string
}

// Load parses os.Args via the flag package (grounded on the teacher's
// Load() pattern: flag.String/flag.Bool/flag.Int declared up front, then
// a single flag.Parse() call).
func Load() (*Config, error) {
	analysisPath := flag.String("analysis-path", "", "path to the corpus JSON file (required)")

	historySize := flag.Int("history-size", 10, "analysis window size N")
	mfccCount := flag.Int("mfcc-count", 13, "number of MFCC coefficients carried in feature vectors")
	useMFCC := flag.Bool("use-mfcc", true, "include MFCC coefficients in feature vectors")
	usePitch := flag.Bool("use-pitch", true, "include pitch (f0) in feature vectors")
	useSpectral := flag.Bool("use-spectral", true, "include spectral features in feature vectors")

	pitchMin := flag.Float64("pitch-min-frequency", 60.0, "minimum frequency passed to the pitch-detection synth")
	pitchMax := flag.Float64("pitch-max-frequency", 3000.0, "maximum frequency passed to the pitch-detection synth")

	silenceThreshold := flag.Float64("silence-threshold-db", -60.0, "silence threshold in dB (offline pipeline only)")

	inputBus := flag.Int("input-bus", 8, "DSP server input bus index")
	outputBus := flag.Int("output-bus", 0, "DSP server output bus index")
	inputCount := flag.Int("input-count", 8, "DSP server input channel count")
	outputCount := flag.Int("output-count", 8, "DSP server output channel count")
	inputDevice := flag.String("input-device", "", "DSP server input hardware device")
	outputDevice := flag.String("output-device", "", "DSP server output hardware device")

	polyphony := flag.Int("polyphony", 0, "soft cap on concurrent voices (0 = uncapped)")
	reverbMix := flag.Float64("reverb-mix", 0.1, "output reverb wet/dry mix, 0..1")

	dspSendHost := flag.String("dsp-send-host", "127.0.0.1", "DSP server OSC send host")
	dspSendPort := flag.Int("dsp-send-port", 57110, "DSP server OSC send port")
	dspListenAddr := flag.String("dsp-listen-addr", "127.0.0.1:57111", "local address to receive DSP server OSC messages on")

	flag.Parse()

	cfg := &Config{
		AnalysisPath:               *analysisPath,
		HistorySize:                *historySize,
		MFCCCount:                  *mfccCount,
		UseMFCC:                    *useMFCC,
		UsePitch:                   *usePitch,
		UseSpectral:                *useSpectral,
		PitchDetectionMinFrequency: *pitchMin,
		PitchDetectionMaxFrequency: *pitchMax,
		SilenceThresholdDB:         *silenceThreshold,
		InputBus:                   *inputBus,
		OutputBus:                  *outputBus,
		InputCount:                 *inputCount,
		OutputCount:                *outputCount,
		InputDevice:                *inputDevice,
		OutputDevice:               *outputDevice,
		Polyphony:                  *polyphony,
		ReverbMix:                  *reverbMix,
		DSPSendHost:                *dspSendHost,
		DSPSendPort:                *dspSendPort,
		DSPListenAddr:              *dspListenAddr,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the fatal-at-startup configuration constraints
// spec.md 6-7 names: a corpus path must be given, and at least one
// feature-subset flag must be set (the same constraint FeatureConfig
// enforces, checked here too so a bad CLI invocation fails before any
// corpus I/O happens).
func (c *Config) Validate() error {
	if c.AnalysisPath == "" {
		return fmt.Errorf("config: -analysis-path is required: %w", errs.ErrConfig)
	}
	if !c.UseMFCC && !c.UsePitch && !c.UseSpectral {
		return fmt.Errorf("config: at least one of -use-mfcc, -use-pitch, -use-spectral must be set: %w", errs.ErrConfig)
	}
	if c.UseMFCC && c.MFCCCount <= 0 {
		return fmt.Errorf("config: -mfcc-count must be positive when -use-mfcc is set: %w", errs.ErrConfig)
	}
	return nil
}
