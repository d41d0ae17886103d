package audio

import "context"

// Mock returns a fixed ChannelAudio (or error) regardless of input, for
// deterministic tests (spec.md §8 scenario 1's RMS-mock scenario).
type Mock struct {
	Result ChannelAudio
	Err    error
}

func (m *Mock) DecodeStereo(ctx context.Context, audioPath string) (ChannelAudio, error) {
	if m.Err != nil {
		return ChannelAudio{}, m.Err
	}
	return m.Result, nil
}
