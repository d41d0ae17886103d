package diarization

import "context"

// Mock returns a fixed list of turns (or error) regardless of input, for
// deterministic tests.
type Mock struct {
	AvailableVal bool
	Turns        []Turn
	Err          error
}

func (m *Mock) Available() bool { return m.AvailableVal }

func (m *Mock) Diarize(ctx context.Context, audioPath string) ([]Turn, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Turns, nil
}
