package types

import (
	"github.com/google/uuid"
)

type Course struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

// CourseGroup and CourseTeacher are explicit join rows. Course membership is
// always resolved through these tables, never through object-graph pointers.
type CourseGroup struct {
	CourseID uuid.UUID `gorm:"type:uuid;primaryKey" json:"course_id"`
	GroupID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"group_id"`
}

func (CourseGroup) TableName() string {
	return "course_groups"
}

type CourseTeacher struct {
	CourseID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"course_id"`
	TeacherID uuid.UUID `gorm:"type:uuid;primaryKey" json:"teacher_id"`
}

func (CourseTeacher) TableName() string {
	return "course_teachers"
}
