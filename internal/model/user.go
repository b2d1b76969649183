package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Email          string    `gorm:"uniqueIndex;not null"`
	HashedPassword string    `gorm:"not null"`
	FirstName      string    `gorm:"not null"`
	LastName       string    `gorm:"not null"`
	RoleID         uint      `gorm:"not null"`
	AreaID         *uint
	Status         bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time

	Role Role  `gorm:"foreignKey:RoleID"`
	Area *Area `gorm:"foreignKey:AreaID"`
}
