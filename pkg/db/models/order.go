package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is created exactly once per provider payment session.
type Order struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	PaymentSessionID *string         `gorm:"column:payment_session_id;uniqueIndex:orders_payment_session_id_key"`
	IsPaid           bool            `gorm:"column:is_paid;not null"`
	TotalAmount      decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency         string          `gorm:"column:currency;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	Items            []OrderItem     `gorm:"foreignKey:OrderID"`
}

// OrderItem snapshots the price paid for one service within an order.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex:order_items_order_service_key,priority:1"`
	ServiceID   uuid.UUID       `gorm:"column:service_id;type:uuid;not null;uniqueIndex:order_items_order_service_key,priority:2"`
	ServiceName string          `gorm:"column:service_name;not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	Vouchers    []Voucher       `gorm:"foreignKey:OrderItemID"`
}

// LineTotal returns unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
