package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeOpen           = "open"
)

// Test is a generated quiz for a lecture. UserID is nil for a SHARED test
// (one per lecture, created at publication) and set for a PER_STUDENT test
// (created lazily on the student's first access). When duplicates exist the
// newest row wins.
type Test struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	LectureID uuid.UUID  `gorm:"type:uuid;not null;index" json:"lecture_id"`
	UserID    *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
}

func (Test) TableName() string {
	return "tests"
}

type Question struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TestID       uuid.UUID `gorm:"type:uuid;not null;index" json:"test_id"`
	QuestionText string    `gorm:"type:text;not null" json:"question_text"`
	// CorrectAnswer stores the answer text; for multiple_choice grading the
	// submitted index is compared against this answer's position in Options.
	CorrectAnswer string         `gorm:"type:text" json:"correct_answer"`
	Options       datatypes.JSON `json:"options,omitempty"`
	QuestionType  string         `gorm:"not null" json:"question_type"`
	OrderIndex    int            `gorm:"not null;default:0" json:"order_index"`
}

func (Question) TableName() string {
	return "questions"
}

// TestAttempt is append-only; the row count per (test, user) is the attempt
// counter used for limit enforcement.
type TestAttempt struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TestID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"test_id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Answers        datatypes.JSON `json:"answers"`
	Score          int            `gorm:"not null" json:"score"`
	TotalQuestions int            `gorm:"not null" json:"total_questions"`
	CompletedAt    time.Time      `gorm:"not null" json:"completed_at"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}
