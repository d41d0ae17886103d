// Package orchestrator runs the per-File checkpointed state machine
// (spec.md §4.4): for a File at entry, read the current stage and run
// every stage strictly greater than it, publishing progress before and
// after each one and persisting each artefact idempotently.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/voxpipe/voxpipe/internal/engines/audio"
	"github.com/voxpipe/voxpipe/internal/engines/diarization"
	"github.com/voxpipe/voxpipe/internal/engines/scoring"
	"github.com/voxpipe/voxpipe/internal/engines/transcription"

	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
	"github.com/voxpipe/voxpipe/internal/progress/bus"
)

// Progress baselines per spec.md §4.4's state machine table.
const (
	progressTranscribeStart = 5
	progressTranscribeEnd   = 40
	progressDiarizeStart    = 45
	progressDiarizeEnd      = 70
	progressAnalyzeStart    = 75
	progressAnalyzeEnd      = 90
	progressDone            = 100
)

// Orchestrator wires the Store, the engine collaborators, and the Progress
// Bus together. One Orchestrator instance is shared by the queue's worker
// goroutine (spec.md §4.3: "the Store is accessed from the worker only").
type Orchestrator struct {
	tx  TxRunner
	log *logger.Logger

	files          repos.FileRepo
	transcriptions repos.TranscriptionRepo
	diarizations   repos.DiarizationRepo
	analyses       repos.AnalysisRepo

	transcriber    transcription.Engine
	diarizer       diarization.Engine
	scorer         scoring.Engine
	audioDecoder   audio.Decoder

	bus *bus.Bus
}

func New(
	tx TxRunner,
	baseLog *logger.Logger,
	files repos.FileRepo,
	transcriptions repos.TranscriptionRepo,
	diarizations repos.DiarizationRepo,
	analyses repos.AnalysisRepo,
	transcriber transcription.Engine,
	diarizer diarization.Engine,
	scorer scoring.Engine,
	audioDecoder audio.Decoder,
	progressBus *bus.Bus,
) *Orchestrator {
	return &Orchestrator{
		tx:             tx,
		log:            baseLog.With("component", "Orchestrator"),
		files:          files,
		transcriptions: transcriptions,
		diarizations:   diarizations,
		analyses:       analyses,
		transcriber:    transcriber,
		diarizer:       diarizer,
		scorer:         scorer,
		audioDecoder:   audioDecoder,
		bus:            progressBus,
	}
}

// Process is the stage-machine entry point: read the current stage and run
// every stage strictly greater than it (spec.md §4.4). Returns an error
// only for unexpected Store failures — engine/domain failures are handled
// internally per the failure policy (fatal for transcribe/diarize,
// non-fatal for analyze) and never bubble up as a Go error.
func (o *Orchestrator) Process(ctx context.Context, fileID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}

	f, err := o.files.GetByID(dbc, fileID)
	if err != nil {
		return fmt.Errorf("orchestrator: load file %s: %w", fileID, err)
	}

	// A checkpoint whose artefact is missing on resume is re-run from the
	// start of that stage instead of failing the File.
	if f.Stage >= pipelinetypes.StageTranscribed && f.Stage < pipelinetypes.StageDone {
		if _, terr := o.transcriptions.GetByFileID(dbc, f.ID); terr != nil {
			f.Stage = pipelinetypes.StageUploaded
		} else if f.Stage >= pipelinetypes.StageDiarized {
			if _, derr := o.diarizations.GetByFileID(dbc, f.ID); derr != nil {
				f.Stage = pipelinetypes.StageTranscribed
			}
		}
	}

	if f.Stage <= pipelinetypes.StageUploaded {
		if err := o.runTranscribe(ctx, f); err != nil {
			return err
		}
		if f.Status == pipelinetypes.StatusFailed {
			return nil
		}
	}

	if f.Stage <= pipelinetypes.StageTranscribed {
		if err := o.runDiarize(ctx, f); err != nil {
			return err
		}
		if f.Status == pipelinetypes.StatusFailed {
			return nil
		}
	}

	if f.Stage <= pipelinetypes.StageDiarized {
		o.runAnalyze(ctx, f) // non-fatal: never aborts the pipeline
	}

	if f.Stage <= pipelinetypes.StageAnalyzed {
		o.finalize(ctx, f)
	}

	return nil
}

func (o *Orchestrator) publish(fileID uuid.UUID, status string, stage, progress int, errMsg string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(bus.Frame{
		FileID:    fileID,
		Status:    status,
		Stage:     stage,
		Progress:  progress,
		StageName: pipelinetypes.StageName(stage),
		Error:     errMsg,
	})
}

// runTranscribe implements stage 0→1. On failure it sets status=failed,
// writes error_message, increments retry_count, publishes a terminal
// error and aborts (spec.md §4.4's fatal policy).
func (o *Orchestrator) runTranscribe(ctx context.Context, f *pipelinetypes.File) error {
	dbc := dbctx.Context{Ctx: ctx}

	o.publish(f.ID, pipelinetypes.StatusTranscribing, pipelinetypes.StageUploaded, progressTranscribeStart, "")
	if err := o.files.UpdateFields(dbc, f.ID, map[string]interface{}{
		"status": pipelinetypes.StatusTranscribing,
		"stage":  pipelinetypes.StageUploaded,
		"progress": progressTranscribeStart,
	}); err != nil {
		return fmt.Errorf("orchestrator: publish transcribe start: %w", err)
	}

	result, err := o.transcriber.Transcribe(ctx, f.AudioPath)
	if err != nil {
		return o.fail(ctx, f, fmt.Sprintf("transcription failed: %v", err))
	}

	timings := make([]pipelinetypes.WordTiming, 0, len(result.Words))
	for _, w := range result.Words {
		timings = append(timings, pipelinetypes.WordTiming{Word: w.Text, StartSec: w.StartSec, EndSec: w.EndSec})
	}
	timingsJSON, err := json.Marshal(timings)
	if err != nil {
		return o.fail(ctx, f, fmt.Sprintf("transcription serialize failed: %v", err))
	}

	err = o.tx.Transaction(ctx, func(txdbc dbctx.Context) error {
		if err := o.transcriptions.Replace(txdbc, &pipelinetypes.Transcription{
			FileID:      f.ID,
			FullText:    result.FullText,
			WordTimings: datatypes.JSON(timingsJSON),
			Language:    result.Language,
		}); err != nil {
			return err
		}
		return o.files.UpdateFields(txdbc, f.ID, map[string]interface{}{
			"stage":    pipelinetypes.StageTranscribed,
			"progress": progressTranscribeEnd,
		})
	})
	if err != nil {
		return fmt.Errorf("orchestrator: persist transcription: %w", err)
	}

	f.Stage = pipelinetypes.StageTranscribed
	f.Progress = progressTranscribeEnd
	o.publish(f.ID, pipelinetypes.StatusTranscribing, pipelinetypes.StageTranscribed, progressTranscribeEnd, "")
	return nil
}

// runDiarize implements stage 1→2. Loads the Transcription written in the
// prior stage (or just produced); Process has already sent a File whose
// Transcription was missing on resume back through transcription, so a
// load that still fails here fails the pipeline rather than fabricating
// word timings.
func (o *Orchestrator) runDiarize(ctx context.Context, f *pipelinetypes.File) error {
	dbc := dbctx.Context{Ctx: ctx}

	o.publish(f.ID, pipelinetypes.StatusDiarizing, pipelinetypes.StageTranscribed, progressDiarizeStart, "")
	if err := o.files.UpdateFields(dbc, f.ID, map[string]interface{}{
		"status":   pipelinetypes.StatusDiarizing,
		"progress": progressDiarizeStart,
	}); err != nil {
		return fmt.Errorf("orchestrator: publish diarize start: %w", err)
	}

	transcript, err := o.transcriptions.GetByFileID(dbc, f.ID)
	if err != nil {
		return o.fail(ctx, f, fmt.Sprintf("diarization failed: missing transcription artefact: %v", err))
	}

	var timings []pipelinetypes.WordTiming
	if err := json.Unmarshal(transcript.WordTimings, &timings); err != nil {
		return o.fail(ctx, f, fmt.Sprintf("diarization failed: corrupt transcription artefact: %v", err))
	}
	words := make([]transcription.Word, 0, len(timings))
	for _, t := range timings {
		words = append(words, transcription.Word{Text: t.Word, StartSec: t.StartSec, EndSec: t.EndSec})
	}

	// spec.md's File has no persisted channel-count column; channel count
	// is instead re-derived here from the decoder's own output (a stereo
	// decode with non-empty right-channel samples implies 2 channels).
	channels := 1
	var chAudio audio.ChannelAudio
	if o.audioDecoder != nil {
		if decoded, derr := o.audioDecoder.DecodeStereo(ctx, f.AudioPath); derr == nil && len(decoded.Right) > 0 {
			chAudio = decoded
			channels = 2
		}
	}

	result := DiarizeByChannelCount(ctx, channels, words, chAudio, o.diarizer, f.AudioPath)

	segmentsJSON, err := json.Marshal(result.Segments)
	if err != nil {
		return o.fail(ctx, f, fmt.Sprintf("diarization serialize failed: %v", err))
	}
	var warningsJSON datatypes.JSON
	if len(result.Warnings) > 0 {
		raw, werr := json.Marshal(result.Warnings)
		if werr == nil {
			warningsJSON = datatypes.JSON(raw)
		}
	}

	err = o.tx.Transaction(ctx, func(txdbc dbctx.Context) error {
		if err := o.diarizations.Replace(txdbc, &pipelinetypes.Diarization{
			FileID:      f.ID,
			Segments:    datatypes.JSON(segmentsJSON),
			Method:      result.Method,
			Confidence:  result.Confidence,
			NumSpeakers: result.NumSpeakers,
			Warnings:    warningsJSON,
		}); err != nil {
			return err
		}
		return o.files.UpdateFields(txdbc, f.ID, map[string]interface{}{
			"stage":    pipelinetypes.StageDiarized,
			"progress": progressDiarizeEnd,
		})
	})
	if err != nil {
		return fmt.Errorf("orchestrator: persist diarization: %w", err)
	}

	f.Stage = pipelinetypes.StageDiarized
	f.Progress = progressDiarizeEnd
	o.publish(f.ID, pipelinetypes.StatusDiarizing, pipelinetypes.StageDiarized, progressDiarizeEnd, "")
	return nil
}

// runAnalyze implements stage 2→3. Never fails the pipeline: an
// unavailable or exhausted scoring engine simply advances the stage
// without writing an Analysis row (spec.md §4.4: "non-fatal").
func (o *Orchestrator) runAnalyze(ctx context.Context, f *pipelinetypes.File) {
	dbc := dbctx.Context{Ctx: ctx}

	o.publish(f.ID, pipelinetypes.StatusAnalyzing, pipelinetypes.StageDiarized, progressAnalyzeStart, "")
	_ = o.files.UpdateFields(dbc, f.ID, map[string]interface{}{
		"status":   pipelinetypes.StatusAnalyzing,
		"progress": progressAnalyzeStart,
	})

	var operatorText, clientText string
	if diarResult, err := o.diarizations.GetByFileID(dbc, f.ID); err == nil {
		var segments []pipelinetypes.TranscriptSegment
		if jerr := json.Unmarshal(diarResult.Segments, &segments); jerr == nil {
			operatorText, clientText = BuildPrompt(segments, "")
		}
	}
	if operatorText == "" {
		if transcript, err := o.transcriptions.GetByFileID(dbc, f.ID); err == nil {
			operatorText, clientText = BuildPrompt(nil, transcript.FullText)
		}
	}

	outcome := RunAnalysis(ctx, o.scorer, operatorText, clientText)
	if outcome != nil {
		quotesJSON, err := json.Marshal(outcome.Quotes)
		if err == nil {
			_ = o.tx.Transaction(ctx, func(txdbc dbctx.Context) error {
				return o.analyses.Replace(txdbc, &pipelinetypes.Analysis{
					FileID:   f.ID,
					Standard: outcome.Standard,
					Loyalty:  outcome.Loyalty,
					Kindness: outcome.Kindness,
					Overall:  outcome.Overall,
					Summary:  outcome.Summary,
					Quotes:   datatypes.JSON(quotesJSON),
					Partial:  outcome.Partial,
					LLMModel: outcome.Model,
				})
			})
		}
	} else {
		o.log.Info("analysis unavailable; advancing without an Analysis row", "file_id", f.ID)
	}

	_ = o.files.UpdateFields(dbc, f.ID, map[string]interface{}{
		"stage":    pipelinetypes.StageAnalyzed,
		"progress": progressAnalyzeEnd,
	})
	f.Stage = pipelinetypes.StageAnalyzed
	f.Progress = progressAnalyzeEnd
	o.publish(f.ID, pipelinetypes.StatusAnalyzing, pipelinetypes.StageAnalyzed, progressAnalyzeEnd, "")
}

// finalize implements stage 3→4 (spec.md §4.4: "set status=done, stage=4,
// progress=100, publish a complete").
func (o *Orchestrator) finalize(ctx context.Context, f *pipelinetypes.File) {
	dbc := dbctx.Context{Ctx: ctx}
	_ = o.files.UpdateFields(dbc, f.ID, map[string]interface{}{
		"status":   pipelinetypes.StatusDone,
		"stage":    pipelinetypes.StageDone,
		"progress": progressDone,
	})
	o.publish(f.ID, pipelinetypes.StatusDone, pipelinetypes.StageDone, progressDone, "")
}

// fail implements the fatal failure policy shared by transcribe/diarize:
// status=failed, error_message set, retry_count incremented, a terminal
// error published, and the pipeline aborted.
func (o *Orchestrator) fail(ctx context.Context, f *pipelinetypes.File, reason string) error {
	dbc := dbctx.Context{Ctx: ctx}
	if err := o.files.UpdateFields(dbc, f.ID, map[string]interface{}{
		"status":        pipelinetypes.StatusFailed,
		"error_message": reason,
		"retry_count":   f.RetryCount + 1,
	}); err != nil {
		o.log.Error("failed to persist failure state", "file_id", f.ID, "error", err)
	}
	f.Status = pipelinetypes.StatusFailed
	f.RetryCount++
	o.publish(f.ID, pipelinetypes.StatusFailed, f.Stage, f.Progress, reason)
	o.log.Warn("pipeline stage failed", "file_id", f.ID, "reason", reason)
	return nil
}
