package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
)

// Line is a cart line as it was priced when the customer paid.
type Line struct {
	ServiceID uuid.UUID       `json:"service_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Total returns unit price times quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Input carries everything needed to turn a confirmed payment into an order.
type Input struct {
	UserID           uuid.UUID
	PaymentSessionID string
	Currency         string
	Lines            []Line
	// CartSession is cleared after a successful materialization when set.
	CartSession string
}

// LineStatus reports what happened to one line.
type LineStatus string

const (
	LineCreated  LineStatus = "created"
	LineExisting LineStatus = "existing"
	LineFailed   LineStatus = "failed"
)

// LineResult is the per-line entry of a materialization report.
type LineResult struct {
	Line         Line                    `json:"line"`
	Status       LineStatus              `json:"status"`
	Reason       enums.LineFailureReason `json:"reason,omitempty"`
	Retryable    bool                    `json:"retryable"`
	VoucherCodes []string                `json:"voucher_codes,omitempty"`
	Err          error                   `json:"-"`
}

// Result is returned by Materialize and AppendLines.
type Result struct {
	Order   *models.Order
	Created bool
	Report  []LineResult
}

// FailedLines returns the report entries that produced no vouchers.
func (r *Result) FailedLines() []LineResult {
	if r == nil {
		return nil
	}
	var out []LineResult
	for _, lr := range r.Report {
		if lr.Status == LineFailed {
			out = append(out, lr)
		}
	}
	return out
}

// RetryableLines returns the failed lines that a later attempt could apply.
func (r *Result) RetryableLines() []Line {
	var out []Line
	for _, lr := range r.FailedLines() {
		if lr.Retryable {
			out = append(out, lr.Line)
		}
	}
	return out
}

// VoucherCodes lists the codes issued by this call.
func (r *Result) VoucherCodes() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, lr := range r.Report {
		out = append(out, lr.VoucherCodes...)
	}
	return out
}

// OrderPage is one page of a customer's order history.
type OrderPage struct {
	Orders     []models.Order
	NextCursor string
}
