package types

import (
	"github.com/google/uuid"
)

const (
	MaterialTypeVideo        = "video"
	MaterialTypeAudio        = "audio"
	MaterialTypePDF          = "pdf"
	MaterialTypeDocument     = "document"
	MaterialTypePresentation = "presentation"
	MaterialTypeOther        = "other"
)

// Material is one uploaded lecture file. FilePath is the material-store key
// of the raw bytes and never changes after upload.
type Material struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LectureID  uuid.UUID `gorm:"type:uuid;not null;index" json:"lecture_id"`
	FileName   string    `gorm:"not null" json:"file_name"`
	FilePath   string    `gorm:"not null" json:"file_path"`
	FileType   string    `gorm:"not null" json:"file_type"`
	FileSize   int64     `json:"file_size"`
	OrderIndex int       `gorm:"not null;default:0" json:"order_index"`
}

func (Material) TableName() string {
	return "lecture_materials"
}
