package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskStatus is one of the four fixed board columns. ID 1..4 maps to
// todo, in_progress, in_review, completed.
type TaskStatus struct {
	ID   int    `gorm:"primaryKey"`
	Key  string `gorm:"uniqueIndex;not null"`
	Name string `gorm:"not null"`
}

type Task struct {
	ID          int64  `gorm:"primaryKey"`
	BoardID     int64  `gorm:"not null;index"`
	StatusID    int    `gorm:"not null;default:1"`
	Title       string `gorm:"not null"`
	Description string
	Priority    string `gorm:"not null;default:MEDIUM"`
	StartDate   *time.Time
	DueDate     *time.Time
	CreatedBy   uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`

	Board     Board          `gorm:"foreignKey:BoardID"`
	Status    TaskStatus     `gorm:"foreignKey:StatusID"`
	Assignees []TaskAssignee `gorm:"foreignKey:TaskID"`
}

type TaskAssignee struct {
	TaskID     int64     `gorm:"primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssignedAt time.Time `gorm:"autoCreateTime"`

	User User `gorm:"foreignKey:UserID"`
}
