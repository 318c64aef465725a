package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/pawpass-backend/api/middleware"
	"github.com/angelmondragon/pawpass-backend/api/responses"
	"github.com/angelmondragon/pawpass-backend/api/validators"
	"github.com/angelmondragon/pawpass-backend/internal/orders"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/pagination"
)

type OrderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*orders.OrderPage, error)
}

type orderListResponse struct {
	Orders     []*orderResponse `json:"orders"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// OrdersList returns the caller's orders, newest first.
func OrdersList(repo OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := repo.ListByUser(r.Context(), actor.UserID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := orderListResponse{
			Orders:     make([]*orderResponse, 0, len(page.Orders)),
			NextCursor: page.NextCursor,
		}
		for i := range page.Orders {
			out.Orders = append(out.Orders, newOrderResponse(&page.Orders[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// OrderInvoice renders one order for its owner or staff. Foreign orders look
// exactly like missing ones.
func OrderInvoice(repo OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := repo.FindByID(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order.UserID != actor.UserID && !actor.IsStaff() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}
