package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaidEvent is emitted once per payment session when the order and its
// vouchers are materialized.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	UserID           uuid.UUID `json:"user_id"`
	PaymentSessionID string    `json:"payment_session_id"`
	TotalAmount      string    `json:"total_amount"`
	Currency         string    `json:"currency"`
	VoucherCount     int       `json:"voucher_count"`
	FailedLines      int       `json:"failed_lines"`
}

// VoucherRedeemedEvent records a staff redemption.
type VoucherRedeemedEvent struct {
	VoucherID  uuid.UUID `json:"voucher_id"`
	Code       string    `json:"code"`
	UserID     uuid.UUID `json:"user_id"`
	ServiceID  uuid.UUID `json:"service_id"`
	RedeemedBy uuid.UUID `json:"redeemed_by"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// VouchersExpiredEvent summarizes one run of the expiry sweep.
type VouchersExpiredEvent struct {
	Count     int64     `json:"count"`
	ExpiredAt time.Time `json:"expired_at"`
}
