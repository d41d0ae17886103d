package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SpeakerOperator = "operator"
	SpeakerClient   = "client"
	SpeakerUnknown  = "unknown"
)

const (
	MethodChannelSplit = "channel_split"
	MethodPyannote     = "pyannote"
)

// TranscriptSegment is one element of a Diarization's ordered segments
// sequence: a speaker-labelled, time-bounded slice of the transcript.
type TranscriptSegment struct {
	Speaker  string  `json:"speaker"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
}

// Diarization is 1:1 with File. Confidence is a pointer so "absent" (an
// exact channel-split result) is distinguishable from 0.
type Diarization struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID      uuid.UUID      `gorm:"type:uuid;column:file_id;not null;uniqueIndex" json:"file_id"`
	Segments    datatypes.JSON `gorm:"column:segments;type:jsonb" json:"segments"`
	Method      string         `gorm:"column:method;not null" json:"method"`
	Confidence  *float64       `gorm:"column:confidence" json:"confidence,omitempty"`
	NumSpeakers int            `gorm:"column:num_speakers;not null;default:1" json:"num_speakers"`
	Warnings    datatypes.JSON `gorm:"column:warnings;type:jsonb" json:"warnings,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (Diarization) TableName() string { return "diarizations" }
