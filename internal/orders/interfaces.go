package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindBySession(ctx context.Context, paymentSessionID string) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderPage, error)
	CreateItem(ctx context.Context, item *models.OrderItem) error
	FindItem(ctx context.Context, orderID, serviceID uuid.UUID) (*models.OrderItem, error)
}

// FailureRepository persists the materialization dead-letter queue.
type FailureRepository interface {
	Insert(ctx context.Context, failure *models.MaterializationFailure) error
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.MaterializationFailure, error)
	ListUnresolved(ctx context.Context, limit int) ([]models.MaterializationFailure, error)
	MarkResolved(ctx context.Context, id uuid.UUID, orderID *uuid.UUID) error
	MarkAttempt(ctx context.Context, id uuid.UUID, errMsg string, retryable bool) error
}
