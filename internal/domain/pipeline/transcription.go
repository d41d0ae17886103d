package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WordTiming is one element of a Transcription's ordered word_timings sequence.
type WordTiming struct {
	Word      string  `json:"word"`
	StartSec  float64 `json:"start_sec"`
	EndSec    float64 `json:"end_sec"`
}

// Transcription is 1:1 with File, written once per stage by the Orchestrator.
// Re-runs delete-then-insert atomically (checkpoint artefact, I4).
type Transcription struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID       uuid.UUID      `gorm:"type:uuid;column:file_id;not null;uniqueIndex" json:"file_id"`
	FullText     string         `gorm:"column:full_text;type:text" json:"full_text"`
	WordTimings  datatypes.JSON `gorm:"column:word_timings;type:jsonb" json:"word_timings"`
	Language     string         `gorm:"column:language" json:"language"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (Transcription) TableName() string { return "transcriptions" }
