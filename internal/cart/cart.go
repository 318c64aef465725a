package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one service in a cart. UnitPrice is copied from the catalogue when
// the line is first added.
type Line struct {
	ServiceID uuid.UUID       `json:"service_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the stored state of one cart session; lines keep insertion order.
type Cart struct {
	Lines     []Line    `json:"lines"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Cart) indexOf(serviceID uuid.UUID) int {
	for i, line := range c.Lines {
		if line.ServiceID == serviceID {
			return i
		}
	}
	return -1
}

// View is the priced projection of a cart.
type View struct {
	Lines []Line
	Total decimal.Decimal
	Items int
}

// IsEmpty reports whether the cart has no lines.
func (v View) IsEmpty() bool {
	return len(v.Lines) == 0
}

func newView(c *Cart) *View {
	view := &View{Lines: make([]Line, 0, len(c.Lines)), Total: decimal.Zero}
	for _, line := range c.Lines {
		view.Lines = append(view.Lines, line)
		view.Total = view.Total.Add(line.Subtotal())
		view.Items += line.Quantity
	}
	view.Total = view.Total.Round(2)
	return view
}
