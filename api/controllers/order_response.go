package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
)

type orderItemResponse struct {
	ServiceID    uuid.UUID `json:"service_id"`
	Name         string    `json:"name"`
	Quantity     int       `json:"quantity"`
	UnitPrice    string    `json:"unit_price"`
	LineTotal    string    `json:"line_total"`
	VoucherCodes []string  `json:"voucher_codes"`
}

// orderResponse doubles as the invoice view of a paid order.
type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	PaymentSessionID string              `json:"payment_session_id,omitempty"`
	IsPaid           bool                `json:"is_paid"`
	Total            string              `json:"total"`
	Currency         string              `json:"currency"`
	CreatedAt        time.Time           `json:"created_at"`
	Items            []orderItemResponse `json:"items"`
}

func newOrderResponse(order *models.Order) *orderResponse {
	if order == nil {
		return nil
	}
	out := &orderResponse{
		ID:        order.ID,
		IsPaid:    order.IsPaid,
		Total:     order.TotalAmount.StringFixed(2),
		Currency:  order.Currency,
		CreatedAt: order.CreatedAt,
		Items:     make([]orderItemResponse, 0, len(order.Items)),
	}
	if order.PaymentSessionID != nil {
		out.PaymentSessionID = *order.PaymentSessionID
	}
	for _, item := range order.Items {
		codes := make([]string, 0, len(item.Vouchers))
		for _, v := range item.Vouchers {
			codes = append(codes, v.Code)
		}
		out.Items = append(out.Items, orderItemResponse{
			ServiceID:    item.ServiceID,
			Name:         item.ServiceName,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice.StringFixed(2),
			LineTotal:    item.LineTotal().StringFixed(2),
			VoucherCodes: codes,
		})
	}
	return out
}
