// Command archon boots the concatenative-synthesis engine: it loads
// configuration and the corpus, wires the Descriptor Index, Analysis
// Window, Buffer Cache, OSC-based DSP Bridge and Engine together, and
// hands them to the Harness, which owns the process until a graceful
// or forced exit.
package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/josiah-wolf-oberholtzer/archon/buffers"
	"github.com/josiah-wolf-oberholtzer/archon/corpus"
	"github.com/josiah-wolf-oberholtzer/archon/dsp"
	"github.com/josiah-wolf-oberholtzer/archon/engine"
	"github.com/josiah-wolf-oberholtzer/archon/harness"
	"github.com/josiah-wolf-oberholtzer/archon/index"
	"github.com/josiah-wolf-oberholtzer/archon/internal/config"
	"github.com/josiah-wolf-oberholtzer/archon/window"
)

// exitCode maps a startup error to the process exit code spec.md 6
// reserves for fatal configuration errors, 0 otherwise.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(exitCode(err))
	}

	if err := run(cfg); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(exitCode(err))
	}
}

func run(cfg *config.Config) error {
	c, err := corpus.Load(cfg.AnalysisPath)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	log.Printf("[archon] loaded corpus: %d partitions from %s", len(c.Partitions), cfg.AnalysisPath)

	featureConfig := corpus.FeatureConfig{
		UsePitch:    cfg.UsePitch,
		UseSpectral: cfg.UseSpectral,
		UseMFCC:     cfg.UseMFCC,
		MFCCCount:   cfg.MFCCCount,
	}

	idx, err := index.New(c, featureConfig)
	if err != nil {
		return fmt.Errorf("building descriptor index: %w", err)
	}
	log.Printf("[archon] built descriptor index: dimension %d", idx.Dimension())

	win := window.New(cfg.HistorySize)

	bridge := dsp.NewOSCBridge(cfg.DSPSendHost, cfg.DSPSendPort, cfg.DSPListenAddr)
	cache := buffers.New(bridge, c.Root)

	params := engine.Params{
		InputBus:           cfg.InputBus,
		OutputBus:          cfg.OutputBus,
		InputCount:         cfg.InputCount,
		OutputCount:        cfg.OutputCount,
		MFCCCount:          cfg.MFCCCount,
		PitchMinFrequency:  cfg.PitchDetectionMinFrequency,
		PitchMaxFrequency:  cfg.PitchDetectionMaxFrequency,
		ReverbMix:          cfg.ReverbMix,
		Polyphony:          cfg.Polyphony,
	}

	eng := engine.New(bridge, idx, win, cache, params, rand.Int63())

	h := harness.New(eng)
	h.Run()

	return nil
}
