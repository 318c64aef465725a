package cart

import (
	cartdto "github.com/angelmondragon/pawpass-backend/api/controllers/cart/dto"
	cartsvc "github.com/angelmondragon/pawpass-backend/internal/cart"
)

func newCartResponse(view *cartsvc.View) cartdto.Cart {
	out := cartdto.Cart{Lines: []cartdto.CartLine{}, Total: "0.00"}
	if view == nil {
		return out
	}
	for _, line := range view.Lines {
		out.Lines = append(out.Lines, cartdto.CartLine{
			ServiceID: line.ServiceID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal().StringFixed(2),
		})
	}
	out.Items = view.Items
	out.Total = view.Total.StringFixed(2)
	return out
}
