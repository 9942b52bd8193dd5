package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProcessedMaterial is the single persisted extraction result for a material.
// At most one row exists per material; its presence means processing finished
// successfully. Failures are never persisted, only logged and aggregated.
type ProcessedMaterial struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MaterialID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"material_id"`
	LectureID  uuid.UUID `gorm:"type:uuid;not null;index" json:"lecture_id"`
	FileType   string    `json:"file_type"`

	ProcessedText *string `gorm:"type:text" json:"processed_text,omitempty"`

	// Embedding is the L2-normalized chunk-sum vector, stored as a JSON
	// array. Null when embedding failed; the material is then unsearchable
	// but still counts as processed.
	Embedding datatypes.JSON `json:"embedding,omitempty"`

	OwnerUserID *uuid.UUID `gorm:"type:uuid" json:"owner_user_id,omitempty"`
	ProcessedAt time.Time  `gorm:"not null" json:"processed_at"`
}

func (ProcessedMaterial) TableName() string {
	return "processed_materials"
}
