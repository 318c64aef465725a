package models

import (
	"time"

	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	"github.com/google/uuid"
)

// Voucher is a single redeemable entitlement to one service session.
type Voucher struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Code        string              `gorm:"column:code;size:16;not null;uniqueIndex:vouchers_code_key"`
	OrderItemID uuid.UUID           `gorm:"column:order_item_id;type:uuid;not null"`
	UserID      uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	ServiceID   uuid.UUID           `gorm:"column:service_id;type:uuid;not null"`
	Service     *Service            `gorm:"foreignKey:ServiceID"`
	Status      enums.VoucherStatus `gorm:"column:status;type:text;not null"`
	IssuedAt    time.Time           `gorm:"column:issued_at;not null"`
	ExpiresAt   time.Time           `gorm:"column:expires_at;not null"`
	RedeemedAt  *time.Time          `gorm:"column:redeemed_at"`
	RedeemedBy  *uuid.UUID          `gorm:"column:redeemed_by;type:uuid"`
	QRAssetKey  string              `gorm:"column:qr_asset_key;not null"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// IsPastExpiry reports whether an issued voucher has outlived its validity.
func (v Voucher) IsPastExpiry(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && !now.Before(v.ExpiresAt)
}
