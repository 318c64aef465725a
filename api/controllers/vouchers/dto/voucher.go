package voucherdto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pawpass-backend/pkg/types"
)

type Voucher struct {
	Code        string     `json:"code"`
	Status      string     `json:"status"`
	ServiceID   uuid.UUID  `json:"service_id"`
	ServiceName string     `json:"service_name,omitempty"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RedeemedAt  *time.Time `json:"redeemed_at,omitempty"`
}

type Wallet struct {
	Notice   *types.Notice `json:"notice,omitempty"`
	Active   []Voucher     `json:"active"`
	Redeemed []Voucher     `json:"redeemed"`
	Expired  []Voucher     `json:"expired"`
}

type Detail struct {
	Voucher
	QRURL     string `json:"qr_url"`
	CanRedeem bool   `json:"can_redeem"`
}

type RedeemResult struct {
	Voucher
	Message string `json:"message"`
}
