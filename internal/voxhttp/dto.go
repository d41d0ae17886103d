// Package voxhttp is the thin gin transport layer over the ingestion
// façade, the Store, and the Progress Bus (spec.md §6). Route handlers
// parse requests, call a collaborator, and serialize the result — no
// business logic lives here, matching the teacher's own handler/service
// split.
package voxhttp

import (
	"time"

	"github.com/google/uuid"

	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
)

// uploadResponse is POST /upload's body.
type uploadResponse struct {
	FileIDs    []string `json:"file_ids"`
	Operator   string   `json:"operator"`
	Status     string   `json:"status"`
	TotalFiles int      `json:"total_files"`
}

// validationErrorsResponse is the 400 body when every blob in a batch fails.
type validationErrorsResponse struct {
	Error   string         `json:"error"`
	Details []errorDetail  `json:"details"`
}

type errorDetail struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// statusResponse is GET /status/{id}'s body.
type statusResponse struct {
	FileID    string `json:"file_id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Stage     int    `json:"stage"`
	StageName string `json:"stage_name"`
	Error     string `json:"error,omitempty"`
}

func newStatusResponse(f *pipelinetypes.File) statusResponse {
	return statusResponse{
		FileID:    f.ID.String(),
		Status:    f.Status,
		Progress:  f.Progress,
		Stage:     f.Stage,
		StageName: pipelinetypes.StageName(f.Stage),
		Error:     f.ErrorMessage,
	}
}

// resultSummary is one row of GET /results's paginated list.
type resultSummary struct {
	FileID       string    `json:"file_id"`
	OriginalName string    `json:"original_name"`
	Operator     string    `json:"operator,omitempty"`
	Status       string    `json:"status"`
	Stage        int       `json:"stage"`
	Overall      *int      `json:"overall,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// resultListResponse is GET /results's body.
type resultListResponse struct {
	Results []resultSummary `json:"results"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
}

// resultDetailResponse is GET /results/{id}'s body.
type resultDetailResponse struct {
	FileID       string                  `json:"file_id"`
	OriginalName string                  `json:"original_name"`
	Status       string                  `json:"status"`
	Stage        int                     `json:"stage"`
	Transcription *transcriptionDetail   `json:"transcription,omitempty"`
	Diarization   *diarizationDetail     `json:"diarization,omitempty"`
	Analysis      *analysisDetail        `json:"analysis,omitempty"`
}

type transcriptionDetail struct {
	FullText string `json:"full_text"`
	Language string `json:"language"`
}

type diarizationDetail struct {
	Method      string                               `json:"method"`
	Confidence  *float64                             `json:"confidence,omitempty"`
	NumSpeakers int                                   `json:"num_speakers"`
	Segments    []pipelinetypes.TranscriptSegment     `json:"segments"`
}

type analysisDetail struct {
	Standard int                   `json:"standard"`
	Loyalty  int                   `json:"loyalty"`
	Kindness int                   `json:"kindness"`
	Overall  int                   `json:"overall"`
	Summary  string                `json:"summary"`
	Quotes   []pipelinetypes.Quote `json:"quotes"`
	Partial  bool                  `json:"partial"`
	Model    string                `json:"model"`
}

// operatorResponse is one row in the operator list/detail responses.
type operatorResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func newOperatorResponse(o *pipelinetypes.Operator) operatorResponse {
	return operatorResponse{ID: o.ID.String(), Name: o.Name, CreatedAt: o.CreatedAt}
}

// healthResponse is GET /health's body.
type healthResponse struct {
	Status          string `json:"status"`
	StoreOK         bool   `json:"store_ok"`
	DiskFreeBytes   int64  `json:"disk_free_bytes"`
	QueueLength     int    `json:"queue_length"`
	CurrentFileID   string `json:"current_file_id,omitempty"`
}

// wsSubscribeMessage is the client->server message on WS /ws.
type wsSubscribeMessage struct {
	Type   string     `json:"type,omitempty"`
	FileID *uuid.UUID `json:"file_id,omitempty"`
}

// wsPushMessage is the server->client message on WS /ws.
type wsPushMessage struct {
	Type      string `json:"type"`
	FileID    string `json:"file_id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Stage     int    `json:"stage"`
	StageName string `json:"stage_name"`
	Error     string `json:"error,omitempty"`
}
