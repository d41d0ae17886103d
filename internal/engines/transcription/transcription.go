// Package transcription models the speech-to-text collaborator (spec.md
// §1, §6): a black box returning full text plus word-level timings.
package transcription

import "context"

// Word is one timed word in a transcription result.
type Word struct {
	Text     string
	StartSec float64
	EndSec   float64
}

// Result is what the engine returns for one audio file.
type Result struct {
	FullText string
	Words    []Word
	Language string
}

// Engine is implemented by both the real speech-to-text binding and the
// deterministic mock used in tests.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}
