package probe

import "context"

// Mock returns a fixed Result (or error) regardless of content, for
// deterministic tests (spec.md §8's mock-engine scenarios).
type Mock struct {
	Result Result
	Err    error
}

func (m *Mock) Probe(ctx context.Context, content []byte) (Result, error) {
	if m.Err != nil {
		return Result{}, m.Err
	}
	return m.Result, nil
}
