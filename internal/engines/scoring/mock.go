package scoring

import "context"

// Mock returns a queue of canned responses (or a fixed error) regardless
// of prompt content, for deterministic tests — including the "scoring
// mock throws on all 3 attempts" scenario (spec.md §8 scenario 3).
type Mock struct {
	AvailableVal bool
	Responses    []string
	Err          error
	calls        int
}

func (m *Mock) Available() bool { return m.AvailableVal }

func (m *Mock) Score(ctx context.Context, systemPrompt, userPrompt string) (RawResult, error) {
	idx := m.calls
	m.calls++
	if m.Err != nil {
		return RawResult{}, m.Err
	}
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	if idx < 0 {
		return RawResult{}, nil
	}
	return RawResult{Text: m.Responses[idx]}, nil
}

// Calls reports how many times Score was invoked (used by Orchestrator
// retry tests to assert the expected attempt count).
func (m *Mock) Calls() int { return m.calls }
