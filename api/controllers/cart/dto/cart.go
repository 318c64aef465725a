package cartdto

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/pawpass-backend/pkg/types"
)

// AddItemRequest adds quantity units of a catalogue service. Price is never
// accepted from the client.
type AddItemRequest struct {
	ServiceID uuid.UUID `json:"service_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=100"`
}

type CartLine struct {
	ServiceID uuid.UUID `json:"service_id"`
	Name      string    `json:"name"`
	UnitPrice string    `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	Subtotal  string    `json:"subtotal"`
}

type Cart struct {
	Lines []CartLine `json:"lines"`
	Items int        `json:"items"`
	Total string     `json:"total"`
}

// RemoveResult reports a removal; a missing line is a notice, not an error.
type RemoveResult struct {
	Removed bool          `json:"removed"`
	Notice  *types.Notice `json:"notice,omitempty"`
	Cart    Cart          `json:"cart"`
}
