package types

import (
	"github.com/google/uuid"
)

const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Login        string     `gorm:"uniqueIndex;not null" json:"login"`
	PasswordHash string     `gorm:"not null" json:"-"`
	FullName     string     `json:"full_name"`
	Role         string     `gorm:"not null;index" json:"role"`
	GroupID      *uuid.UUID `gorm:"type:uuid;index" json:"group_id,omitempty"`
}

func (User) TableName() string {
	return "users"
}

type Group struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"uniqueIndex;not null" json:"name"`
}

func (Group) TableName() string {
	return "groups"
}
