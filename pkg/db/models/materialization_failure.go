package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	"github.com/google/uuid"
)

// MaterializationFailure is the dead-letter record for confirmed payments that
// could not be fully turned into orders and vouchers.
type MaterializationFailure struct {
	ID               uuid.UUID          `gorm:"type:uuid;primaryKey"`
	PaymentSessionID string             `gorm:"column:payment_session_id;not null;index"`
	UserID           uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	OrderID          *uuid.UUID         `gorm:"column:order_id;type:uuid"`
	Stage            enums.FailureStage `gorm:"column:stage;type:text;not null"`
	Lines            json.RawMessage    `gorm:"column:lines;type:jsonb;not null"`
	CartSession      *string            `gorm:"column:cart_session"`
	Reason           string             `gorm:"column:reason;not null"`
	ErrorMessage     *string            `gorm:"column:error_message"`
	Retryable        bool               `gorm:"column:retryable;not null"`
	AttemptCount     int                `gorm:"column:attempt_count;not null"`
	LastAttemptAt    *time.Time         `gorm:"column:last_attempt_at"`
	ResolvedAt       *time.Time         `gorm:"column:resolved_at"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
