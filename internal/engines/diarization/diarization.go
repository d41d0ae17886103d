// Package diarization models the speaker-separation collaborator
// (spec.md §1, §6, §4.4): a black box returning time-labelled speaker
// turns, used only by the "pyannote" strategy (channel_split needs no
// external engine — it works directly off per-channel RMS energy).
package diarization

import "context"

// Turn is one raw speaker turn as reported by the engine, before role
// assignment (spec.md §4.4: "Collect segments {start, end, label}").
type Turn struct {
	Label    string
	StartSec float64
	EndSec   float64
}

// Engine is implemented by both the real HTTP-backed binding and the
// deterministic mock used in tests. Available() reports whether a
// credential/endpoint is configured; when false the Orchestrator falls
// through to the single-speaker degradation (spec.md §4.4) without ever
// calling Diarize.
type Engine interface {
	Available() bool
	Diarize(ctx context.Context, audioPath string) ([]Turn, error)
}
