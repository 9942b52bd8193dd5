package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	TestModeShared     = "shared"
	TestModePerStudent = "per_student"
)

type Lecture struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`

	// Published only ever moves false -> true, and only inside the final
	// publication transaction.
	Published bool `gorm:"not null;default:false" json:"published"`

	GenerateTest       bool       `gorm:"not null;default:false" json:"generate_test"`
	TestGenerationMode string     `gorm:"not null;default:shared" json:"test_generation_mode"`
	TestMaxAttempts    int        `gorm:"not null;default:1" json:"test_max_attempts"`
	TestShowAnswers    bool       `gorm:"not null;default:false" json:"test_show_answers"`
	TestDeadline       *time.Time `json:"test_deadline,omitempty"`

	// LastPublishError holds the aggregated error list of the most recent
	// failed publish cycle, for polling clients. Cleared on success.
	LastPublishError string `json:"last_publish_error,omitempty"`
}

func (Lecture) TableName() string {
	return "lectures"
}
