package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

const (
	CriterionStandard = "standard"
	CriterionLoyalty  = "loyalty"
	CriterionKindness = "kindness"
)

// Quote is one element of an Analysis's quotes sequence.
type Quote struct {
	Text      string `json:"text"`
	Criterion string `json:"criterion"`
	Sentiment string `json:"sentiment"`
}

// Analysis is 1:1 with File and, unlike Transcription/Diarization, is
// optional: its absence at stage>=3 means the scoring engine was
// unavailable (graceful degradation), not a failure.
type Analysis struct {
	ID       uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID   uuid.UUID      `gorm:"type:uuid;column:file_id;not null;uniqueIndex" json:"file_id"`
	Standard int            `gorm:"column:standard;not null;check:standard >= 0 AND standard <= 100" json:"standard"`
	Loyalty  int            `gorm:"column:loyalty;not null;check:loyalty >= 0 AND loyalty <= 100" json:"loyalty"`
	Kindness int            `gorm:"column:kindness;not null;check:kindness >= 0 AND kindness <= 100" json:"kindness"`
	Overall  int            `gorm:"column:overall;not null;check:overall >= 0 AND overall <= 100" json:"overall"`
	Summary  string         `gorm:"column:summary;type:text;not null" json:"summary"`
	Quotes   datatypes.JSON `gorm:"column:quotes;type:jsonb" json:"quotes,omitempty"`
	Partial  bool           `gorm:"column:partial;not null;default:false" json:"partial"`
	LLMModel string         `gorm:"column:llm_model" json:"llm_model"`
	CreatedAt time.Time     `gorm:"not null;default:now()" json:"created_at"`
}

func (Analysis) TableName() string { return "analyses" }
