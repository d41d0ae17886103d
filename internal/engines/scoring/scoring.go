// Package scoring models the quality-of-service scoring collaborator
// (spec.md §1, §6, §4.4's "Analysis detail"): a black box returning
// numeric scores, a summary and quotes from a conversation transcript.
package scoring

import "context"

// RawResult is the engine's raw (unclamped, unvalidated) response,
// returned as text for the Orchestrator's strict-JSON parser to consume
// (spec.md §4.4: "Parse the returned text: strip any leading/trailing
// fenced code marks..."). Real engines speak free-form text; only the
// Orchestrator's parser enforces the contract.
type RawResult struct {
	Text string
}

// Engine is implemented by both the real chat-completion binding and the
// deterministic mock used in tests. Available reports whether a
// credential is configured; when false, scoring is skipped entirely
// (graceful degradation, never a failure).
type Engine interface {
	Available() bool
	// Score calls the engine once with the given system+user prompt pair
	// and returns its raw text response. Retry/backoff across attempts is
	// the Orchestrator's responsibility (spec.md §4.4), not the engine's.
	Score(ctx context.Context, systemPrompt, userPrompt string) (RawResult, error)
}
