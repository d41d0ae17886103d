package orchestrator

import (
	"context"
	"math"
	"sort"

	"github.com/voxpipe/voxpipe/internal/engines/audio"
	"github.com/voxpipe/voxpipe/internal/engines/diarization"
	"github.com/voxpipe/voxpipe/internal/engines/transcription"
	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
)

// lowConfidenceThreshold mirrors diarization.py's LOW_CONFIDENCE_THRESHOLD.
const lowConfidenceThreshold = 70.0

// DiarizeResult is the Orchestrator's internal diarization outcome, before
// persistence as a types.Diarization row.
type DiarizeResult struct {
	Segments    []pipelinetypes.TranscriptSegment
	Method      string
	Confidence  *float64
	NumSpeakers int
	Warnings    []string
}

// rmsEnergy computes RMS energy of a PCM f32 slice, grounded on
// diarization.py::_merge_stereo's np.sqrt(np.mean(audio**2)).
func rmsEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// diarizeChannelSplit implements spec.md §4.4's channel_split strategy:
// for each word, compute RMS energy on [start,end] of each channel and
// assign the word to the louder one. No external engine call.
func diarizeChannelSplit(words []transcription.Word, ch audio.ChannelAudio) DiarizeResult {
	segments := make([]pipelinetypes.TranscriptSegment, 0, len(words))
	for _, w := range words {
		startIdx := int(w.StartSec * float64(ch.SampleRate))
		endIdx := int(w.EndSec * float64(ch.SampleRate))
		left := sliceWindow(ch.Left, startIdx, endIdx)
		right := sliceWindow(ch.Right, startIdx, endIdx)

		speaker := pipelinetypes.SpeakerClient
		if rmsEnergy(left) >= rmsEnergy(right) {
			speaker = pipelinetypes.SpeakerOperator
		}
		segments = append(segments, pipelinetypes.TranscriptSegment{
			Speaker:  speaker,
			StartSec: w.StartSec,
			EndSec:   w.EndSec,
			Text:     w.Text,
		})
	}

	return DiarizeResult{
		Segments:    mergeAdjacent(segments),
		Method:      pipelinetypes.MethodChannelSplit,
		Confidence:  nil, // exact, not probabilistic
		NumSpeakers: 2,
	}
}

func sliceWindow(samples []float32, start, end int) []float32 {
	if start < 0 {
		start = 0
	}
	if end > len(samples) {
		end = len(samples)
	}
	if start >= end {
		return nil
	}
	return samples[start:end]
}

// assignSpeakerRoles implements spec.md §4.4's first-appearance role
// assignment: sort turns by start ascending, earliest distinct label ->
// operator, next -> client, further -> unknown.
func assignSpeakerRoles(turns []diarization.Turn) map[string]string {
	sorted := make([]diarization.Turn, len(turns))
	copy(sorted, turns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartSec < sorted[j].StartSec })

	roleOf := map[string]string{}
	order := []string{pipelinetypes.SpeakerOperator, pipelinetypes.SpeakerClient}
	next := 0
	for _, t := range sorted {
		if _, seen := roleOf[t.Label]; seen {
			continue
		}
		if next < len(order) {
			roleOf[t.Label] = order[next]
		} else {
			roleOf[t.Label] = pipelinetypes.SpeakerUnknown
		}
		next++
	}
	return roleOf
}

// assignWordsToTurns implements spec.md §4.4's overlap assignment: for
// each word, pick the turn with greatest overlap (ties broken by earlier
// turn, since comparison below is strict >). Zero overlap -> unknown.
func assignWordsToTurns(words []transcription.Word, turns []diarization.Turn, roleOf map[string]string) []pipelinetypes.TranscriptSegment {
	segments := make([]pipelinetypes.TranscriptSegment, 0, len(words))
	for _, w := range words {
		best := -1
		bestOverlap := 0.0
		for i, t := range turns {
			overlap := overlapLength(w.StartSec, w.EndSec, t.StartSec, t.EndSec)
			if overlap > bestOverlap {
				bestOverlap = overlap
				best = i
			}
		}
		speaker := pipelinetypes.SpeakerUnknown
		if best >= 0 {
			speaker = roleOf[turns[best].Label]
		}
		segments = append(segments, pipelinetypes.TranscriptSegment{
			Speaker:  speaker,
			StartSec: w.StartSec,
			EndSec:   w.EndSec,
			Text:     w.Text,
		})
	}
	return segments
}

func overlapLength(aStart, aEnd, bStart, bEnd float64) float64 {
	lo := math.Max(aStart, bStart)
	hi := math.Min(aEnd, bEnd)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// estimateConfidence mirrors diarization.py::_estimate_confidence:
// 90 - 30*S/N, clamped to [0,100], where S is the count of segments
// shorter than 0.5s and N is the total segment count.
func estimateConfidence(turns []diarization.Turn) float64 {
	if len(turns) == 0 {
		return 0
	}
	short := 0
	for _, t := range turns {
		if t.EndSec-t.StartSec < 0.5 {
			short++
		}
	}
	conf := 90.0 - 30.0*float64(short)/float64(len(turns))
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}
	return conf
}

// mergeAdjacent collapses consecutive same-speaker segments into one,
// extending end and space-joining text (spec.md §4.4 "Segment merging").
func mergeAdjacent(segments []pipelinetypes.TranscriptSegment) []pipelinetypes.TranscriptSegment {
	if len(segments) == 0 {
		return segments
	}
	out := make([]pipelinetypes.TranscriptSegment, 0, len(segments))
	cur := segments[0]
	for _, s := range segments[1:] {
		if s.Speaker == cur.Speaker {
			cur.EndSec = s.EndSec
			if cur.Text != "" && s.Text != "" {
				cur.Text = cur.Text + " " + s.Text
			} else {
				cur.Text += s.Text
			}
			continue
		}
		out = append(out, cur)
		cur = s
	}
	out = append(out, cur)
	return out
}

// diarizePyannote implements spec.md §4.4's pyannote strategy, including
// the single-speaker fallback when the engine is unavailable.
func diarizePyannote(ctx context.Context, engine diarization.Engine, audioPath string, words []transcription.Word) DiarizeResult {
	if engine == nil || !engine.Available() {
		return singleSpeakerFallback(words)
	}

	turns, err := engine.Diarize(ctx, audioPath)
	if err != nil || len(turns) == 0 {
		return singleSpeakerFallback(words)
	}

	roleOf := assignSpeakerRoles(turns)
	segments := mergeAdjacent(assignWordsToTurns(words, turns, roleOf))

	conf := estimateConfidence(turns)
	result := DiarizeResult{
		Segments:    segments,
		Method:      pipelinetypes.MethodPyannote,
		Confidence:  &conf,
		NumSpeakers: len(roleOf),
	}
	if conf < lowConfidenceThreshold {
		result.Warnings = append(result.Warnings, "low confidence diarization result")
	}
	return result
}

// singleSpeakerFallback matches diarization.py::_fallback_single_speaker:
// every word -> operator, method=pyannote, confidence absent, num_speakers=1.
func singleSpeakerFallback(words []transcription.Word) DiarizeResult {
	segments := make([]pipelinetypes.TranscriptSegment, 0, len(words))
	for _, w := range words {
		segments = append(segments, pipelinetypes.TranscriptSegment{
			Speaker:  pipelinetypes.SpeakerOperator,
			StartSec: w.StartSec,
			EndSec:   w.EndSec,
			Text:     w.Text,
		})
	}
	return DiarizeResult{
		Segments:    mergeAdjacent(segments),
		Method:      pipelinetypes.MethodPyannote,
		Confidence:  nil,
		NumSpeakers: 1,
		Warnings:    []string{"diarization engine unavailable — single-speaker fallback"},
	}
}

// DiarizeByChannelCount is the strategy-selection entry point (spec.md
// §4.4): channel count 2 -> channel_split, otherwise -> pyannote.
func DiarizeByChannelCount(ctx context.Context, channels int, words []transcription.Word, ch audio.ChannelAudio, engine diarization.Engine, audioPath string) DiarizeResult {
	if channels == 2 {
		return diarizeChannelSplit(words, ch)
	}
	return diarizePyannote(ctx, engine, audioPath, words)
}
