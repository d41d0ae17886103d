package transcription

import "context"

// Mock returns a fixed Result (or error) regardless of input, for
// deterministic tests (spec.md §8 scenario 1: "10 words with timings").
type Mock struct {
	Result Result
	Err    error
}

func (m *Mock) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if m.Err != nil {
		return Result{}, m.Err
	}
	return m.Result, nil
}
