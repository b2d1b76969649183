package model

import (
	"time"
)

type Board struct {
	ID          int64  `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Description string
	AreaID      *uint
	IsActive    bool `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Area *Area `gorm:"foreignKey:AreaID"`
}
