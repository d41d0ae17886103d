// Package probe models the audio probing collaborator (spec.md §1, §6):
// a black box that reports a recording's duration and channel count.
package probe

import "context"

// Result is what a probe reports for one blob.
type Result struct {
	DurationSec float64
	Channels    int
}

// Probe is implemented by both the ffprobe-backed real binding and the
// deterministic mock used in tests.
type Probe interface {
	// Probe writes content to a temp location (if needed) and inspects it.
	// A timeout is enforced via ctx; callers should bound it to 30s per
	// spec.md §4.1 check 5.
	Probe(ctx context.Context, content []byte) (Result, error)
}
