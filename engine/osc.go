package engine

import (
	"log"

	"github.com/josiah-wolf-oberholtzer/archon/corpus"
	"github.com/josiah-wolf-oberholtzer/archon/dsp"
)

// onAnalysisOSCMessage parses the fixed /analysis payload (spec.md 6:
// "[reply_id, node_id, peak, rms, f0_midi, is_voiced, is_onset, centroid,
// flatness, rolloff, mfcc_0, ..., mfcc_{M-1}]") and feeds it to the
// Analysis Window.
func (e *Engine) onAnalysisOSCMessage(msg dsp.Message) {
	const fixedFields = 10
	if len(msg.Args) < fixedFields {
		log.Printf("[engine] /analysis message too short: %d args", len(msg.Args))
		return
	}

	peak := toFloat64(msg.Args[2])
	rms := toFloat64(msg.Args[3])
	f0 := toFloat64(msg.Args[4])
	isVoiced := toFloat64(msg.Args[5]) != 0
	isOnset := toFloat64(msg.Args[6]) != 0
	centroid := toFloat64(msg.Args[7])
	flatness := toFloat64(msg.Args[8])
	rolloff := toFloat64(msg.Args[9])

	mfcc := make([]float64, 0, len(msg.Args)-fixedFields)
	for _, v := range msg.Args[fixedFields:] {
		mfcc = append(mfcc, toFloat64(v))
	}

	e.window.Intake(corpus.FeatureFrame{
		Peak:     peak,
		RMS:      rms,
		F0:       f0,
		IsVoiced: isVoiced,
		IsOnset:  isOnset,
		Centroid: centroid,
		Flatness: flatness,
		Rolloff:  rolloff,
		MFCC:     mfcc,
	})
}

// onNEndOSCMessage handles a DSP server node-termination event: the
// node's buffer holder is released inside a timed transaction (spec.md
// 4.6, 6's "/n_end [node_id, ...]").
func (e *Engine) onNEndOSCMessage(msg dsp.Message) {
	if len(msg.Args) < 1 {
		log.Printf("[engine] /n_end message missing node id")
		return
	}
	nodeID := dsp.NodeHandle(int32(toFloat64(msg.Args[0])))
	holder := nodeHolder(nodeID)

	txn := e.bridge.At(e.bridge.Clock().Now())
	defer txn.Release()
	if err := e.buffers.Decrement(holder, true); err != nil {
		log.Printf("[engine] /n_end for node %v: %v", nodeID, err)
	}
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}
