package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusQueued      = "queued"
	StatusTranscribing = "transcribing"
	StatusDiarizing   = "diarizing"
	StatusAnalyzing   = "analyzing"
	StatusDone        = "done"
	StatusFailed      = "failed"
)

// RecoverableStatuses are the statuses a crashed worker can leave a File in
// mid-stage; crash recovery rewrites these back to StatusQueued.
var RecoverableStatuses = []string{StatusTranscribing, StatusDiarizing, StatusAnalyzing}

const (
	StageUploaded     = 0
	StageTranscribed  = 1
	StageDiarized     = 2
	StageAnalyzed     = 3
	StageDone         = 4
)

// StageName maps a stage integer to its UI label (I4.5 — not part of any invariant).
func StageName(stage int) string {
	switch stage {
	case StageUploaded:
		return "waiting"
	case StageTranscribed:
		return "transcription"
	case StageDiarized:
		return "diarization"
	case StageAnalyzed:
		return "analysis"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// File is the Job entity: one audio recording tracked through the pipeline.
// Mutated only by the Orchestrator and the crash-recovery pass, never
// deleted by the core.
type File struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OperatorID  *uuid.UUID `gorm:"type:uuid;column:operator_id;index" json:"operator_id,omitempty"`
	OriginalName string    `gorm:"column:original_name;not null" json:"original_name"`
	FileHash    string     `gorm:"column:file_hash;type:char(64);not null;index" json:"file_hash"`
	FileSize    int64      `gorm:"column:file_size;not null" json:"file_size"`
	DurationSec *float64   `gorm:"column:duration_sec" json:"duration_sec,omitempty"`
	AudioPath   string     `gorm:"column:audio_path" json:"audio_path,omitempty"`
	Status      string     `gorm:"column:status;not null;index" json:"status"`
	Stage       int        `gorm:"column:stage;not null;index;default:0" json:"stage"`
	Progress    int        `gorm:"column:progress;not null;default:0" json:"progress"`
	RetryCount  int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	ErrorMessage string    `gorm:"column:error_message" json:"error_message,omitempty"`

	// CRM-correlation columns (SPEC_FULL.md §3.1) — populated only by the
	// CRM bridge, never read or written by the core pipeline.
	CallerPhone    string  `gorm:"column:caller_phone" json:"caller_phone,omitempty"`
	CalledPhone    string  `gorm:"column:called_phone" json:"called_phone,omitempty"`
	OperatorPhone  string  `gorm:"column:operator_phone" json:"operator_phone,omitempty"`
	CRMDurationSec *float64 `gorm:"column:crm_duration_sec" json:"crm_duration_sec,omitempty"`
	OrderID        string  `gorm:"column:order_id;index" json:"order_id,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (File) TableName() string { return "files" }
