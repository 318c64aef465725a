package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ServiceCategory struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Slug      string    `gorm:"column:slug;not null;uniqueIndex"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Service is a purchasable catalogue entry. Price is authoritative at the time
// a line is added to a cart.
type Service struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey"`
	CategoryID    *uuid.UUID       `gorm:"column:category_id;type:uuid"`
	Category      *ServiceCategory `gorm:"foreignKey:CategoryID"`
	Name          string           `gorm:"column:name;not null"`
	Slug          string           `gorm:"column:slug;not null;uniqueIndex"`
	Description   *string          `gorm:"column:description"`
	Price         decimal.Decimal  `gorm:"column:price;type:numeric(10,2);not null"`
	DurationHours int              `gorm:"column:duration_hours;not null"`
	IsBundle      bool             `gorm:"column:is_bundle;not null"`
	IsActive      bool             `gorm:"column:is_active;not null"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
