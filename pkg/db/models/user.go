package models

import (
	"time"

	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	"github.com/google/uuid"
)

// User is the local projection of an authenticated buyer or staff member.
type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Email     string     `gorm:"type:text;not null;uniqueIndex"`
	Role      enums.Role `gorm:"column:role;type:text;not null"`
	IsActive  bool       `gorm:"column:is_active;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
