package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Operator is created on first reference by name and persists; name is
// treated as a natural key by ingestion (first-wins upsert) but carries no
// unique constraint at the schema level.
type Operator struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null;index" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Operator) TableName() string { return "operators" }
