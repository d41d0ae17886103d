package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/voxpipe/voxpipe/internal/engines/scoring"
	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
)

const scoringMaxAttempts = 3

// scoringBaseDelay is a var, not a const, so tests can shrink it.
var scoringBaseDelay = 2 * time.Second

const systemPrompt = `You are a call-center quality analyst. Score the operator's performance on three criteria (standard, loyalty, kindness), each 0-100, compute an overall score, write a short summary, and extract 2-5 supporting quotes. Respond as a JSON object with keys: standard, loyalty, kindness, overall, summary, quotes.`

const strictSystemPrompt = systemPrompt + ` Respond with raw JSON only — no markdown, no code fences, no commentary.`

// AnalysisOutcome is the Orchestrator's internal scoring result, before
// persistence as a types.Analysis row. A nil outcome from RunAnalysis
// signals "unavailable" (spec.md §4.4's Return contract).
type AnalysisOutcome struct {
	Standard int
	Loyalty  int
	Kindness int
	Overall  int
	Summary  string
	Quotes   []pipelinetypes.Quote
	Partial  bool
	Model    string
}

// BuildPrompt implements spec.md §4.4: "newline-joined operator-speaker
// words" and "client-speaker words" built from diarized transcript
// segments, or falling back to the full transcription text when no
// diarization is available (matching pipeline.py::_run_analysis).
func BuildPrompt(segments []pipelinetypes.TranscriptSegment, fallbackFullText string) (operatorText, clientText string) {
	if len(segments) == 0 {
		return fallbackFullText, ""
	}
	var op, cl []string
	for _, s := range segments {
		switch s.Speaker {
		case pipelinetypes.SpeakerOperator:
			op = append(op, s.Text)
		case pipelinetypes.SpeakerClient:
			cl = append(cl, s.Text)
		}
	}
	return strings.Join(op, "\n"), strings.Join(cl, "\n")
}

// RunAnalysis implements the scoring contract of spec.md §4.4: up to 3
// attempts, exponential backoff (2s, 4s), switching to a strict-JSON
// prompt after the first attempt. Returns nil on any of: no credential,
// all retries exhausted, unparseable response, or missing required
// fields — all of which are "unavailable", never an error the caller
// must propagate (§4.4's Analysis stage is explicitly non-fatal).
func RunAnalysis(ctx context.Context, engine scoring.Engine, operatorText, clientText string) *AnalysisOutcome {
	if engine == nil || !engine.Available() {
		return nil
	}
	if strings.TrimSpace(operatorText) == "" {
		return nil
	}

	userPrompt := fmt.Sprintf("Operator speech:\n%s\n\nClient speech (context):\n%s", operatorText, clientText)

	delay := scoringBaseDelay
	for attempt := 1; attempt <= scoringMaxAttempts; attempt++ {
		sysPrompt := systemPrompt
		if attempt > 1 {
			sysPrompt = strictSystemPrompt
		}

		raw, err := engine.Score(ctx, sysPrompt, userPrompt)
		if err == nil {
			if outcome := parseAndValidate(raw.Text); outcome != nil {
				return outcome
			}
		}

		if attempt == scoringMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil
}

type rawScoringResponse struct {
	Standard json.Number `json:"standard"`
	Loyalty  json.Number `json:"loyalty"`
	Kindness json.Number `json:"kindness"`
	Overall  json.Number `json:"overall"`
	Summary  string      `json:"summary"`
	Quotes   []rawQuote  `json:"quotes"`
}

type rawQuote struct {
	Text      string `json:"text"`
	Criterion string `json:"criterion"`
	Sentiment string `json:"sentiment"`
}

// parseAndValidate implements spec.md §4.4's parse/clamp/recompute
// contract, grounded on llm_service.py::_parse_and_validate.
func parseAndValidate(text string) *AnalysisOutcome {
	stripped := stripFences(text)

	var parsed rawScoringResponse
	if err := json.Unmarshal([]byte(stripped), &parsed); err != nil {
		return nil
	}

	partial := false

	standard, ok := clampScore(parsed.Standard, &partial)
	if !ok {
		return nil
	}
	loyalty, ok := clampScore(parsed.Loyalty, &partial)
	if !ok {
		return nil
	}
	kindness, ok := clampScore(parsed.Kindness, &partial)
	if !ok {
		return nil
	}
	overall, ok := clampScore(parsed.Overall, &partial)
	if !ok {
		return nil
	}

	summary := strings.TrimSpace(parsed.Summary)
	if summary == "" {
		partial = true
	}

	quotes := make([]pipelinetypes.Quote, 0, len(parsed.Quotes))
	for _, q := range parsed.Quotes {
		text := strings.TrimSpace(q.Text)
		criterion := strings.TrimSpace(q.Criterion)
		if text == "" || criterion == "" {
			continue
		}
		sentiment := strings.TrimSpace(q.Sentiment)
		if sentiment == "" {
			sentiment = pipelinetypes.SentimentNeutral
		}
		quotes = append(quotes, pipelinetypes.Quote{Text: text, Criterion: criterion, Sentiment: sentiment})
	}

	// I6: recompute overall and override if the engine's value deviates
	// by more than 5.
	expected := int(math.Round(0.4*float64(standard) + 0.3*float64(loyalty) + 0.3*float64(kindness)))
	if abs(overall-expected) > 5 {
		overall = expected
	}

	return &AnalysisOutcome{
		Standard: standard,
		Loyalty:  loyalty,
		Kindness: kindness,
		Overall:  overall,
		Summary:  summary,
		Quotes:   quotes,
		Partial:  partial,
		Model:    "gpt-4",
	}
}

// stripFences removes leading/trailing ``` fenced code marks, matching
// llm_service.py's line-filter approach.
func stripFences(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// clampScore clamps a numeric field to [0,100], marking partial if
// clamping occurred. A missing or non-numeric field returns ok=false and
// leaves partial untouched; the caller then discards the whole result,
// matching llm_service.py's "non-numeric -> None" behavior.
func clampScore(n json.Number, partial *bool) (int, bool) {
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	v := int(math.Round(f))
	if v < 0 {
		v = 0
		*partial = true
	}
	if v > 100 {
		v = 100
		*partial = true
	}
	return v, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
