package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/pawpass-backend/api/middleware"
	"github.com/angelmondragon/pawpass-backend/api/responses"
	"github.com/angelmondragon/pawpass-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/pawpass-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
)

type CheckoutService interface {
	CreateSession(ctx context.Context, userID uuid.UUID, cartSession string) (*checkoutsvc.Session, error)
	Reconcile(ctx context.Context, sessionID string, userID uuid.UUID) (*checkoutsvc.Reconciliation, error)
}

type checkoutSuccessResponse struct {
	Status      string         `json:"status"`
	SessionID   string         `json:"session_id"`
	Created     bool           `json:"created"`
	FailedLines int            `json:"failed_lines"`
	Order       *orderResponse `json:"order,omitempty"`
}

// CheckoutCreate opens a provider checkout session for the caller's cart.
func CheckoutCreate(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		session, err := svc.CreateSession(r.Context(), actor.UserID, middleware.CartSessionFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// CheckoutSuccess reconciles the session the customer returned from.
func CheckoutSuccess(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		sessionID, err := validators.RequireQuery(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPaymentSession(ctx, sessionID)
		}
		result, err := svc.Reconcile(ctx, sessionID, actor.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkoutSuccessResponse{
			Status:      result.Status,
			SessionID:   result.SessionID,
			Created:     result.Created,
			FailedLines: result.FailedLines,
			Order:       newOrderResponse(result.Order),
		})
	}
}
