package cart

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	cartdto "github.com/angelmondragon/pawpass-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/pawpass-backend/api/middleware"
	"github.com/angelmondragon/pawpass-backend/api/responses"
	"github.com/angelmondragon/pawpass-backend/api/validators"
	cartsvc "github.com/angelmondragon/pawpass-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/types"
)

const noticeItemMissing = "That item is no longer in your cart."

type Service interface {
	Add(ctx context.Context, sessionID string, serviceID uuid.UUID, quantity int) (*cartsvc.View, error)
	Remove(ctx context.Context, sessionID string, serviceID uuid.UUID) (*cartsvc.View, error)
	View(ctx context.Context, sessionID string) (*cartsvc.View, error)
}

// CartFetch returns the priced cart for the caller's cart session.
func CartFetch(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		view, err := svc.View(r.Context(), middleware.CartSessionFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}

// CartAddItem adds a service to the cart at its current catalogue price.
func CartAddItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Add(r.Context(), middleware.CartSessionFromContext(r.Context()), payload.ServiceID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}

// CartRemoveItem removes a line. Removing a line that is not there answers 200
// with removed=false and a notice.
func CartRemoveItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		serviceID, err := validators.ParseUUIDParam(r, "serviceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Remove(r.Context(), middleware.CartSessionFromContext(r.Context()), serviceID)
		if err != nil {
			if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if logg != nil {
				logg.Info(logg.WithField(r.Context(), "service_id", serviceID.String()), "cart.remove_missing")
			}
			responses.WriteSuccess(w, cartdto.RemoveResult{
				Removed: false,
				Notice:  &types.Notice{Level: types.NoticeInfo, Message: noticeItemMissing},
				Cart:    newCartResponse(view),
			})
			return
		}
		responses.WriteSuccess(w, cartdto.RemoveResult{Removed: true, Cart: newCartResponse(view)})
	}
}
