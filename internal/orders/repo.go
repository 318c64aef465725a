package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindBySession(ctx context.Context, paymentSessionID string) (*models.Order, error) {
	var order models.Order
	err := r.withItems(ctx).
		Where("payment_session_id = ?", paymentSessionID).
		First(&order).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withItems(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &order, nil
}

// ListByUser pages through a customer's orders, newest first.
func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderPage, error) {
	after, err := params.After()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := r.withItems(ctx).Where("user_id = ?", userID)
	if after != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}

	var rows []models.Order
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(params.FetchSize()).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	page := &OrderPage{}
	page.Orders, page.NextCursor = pagination.Trim(params, rows, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return page, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.OrderItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindItem(ctx context.Context, orderID, serviceID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	err := r.db.WithContext(ctx).
		Preload("Vouchers").
		Where("order_id = ? AND service_id = ?", orderID, serviceID).
		First(&item).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &item, nil
}

func (r *repository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Items.Vouchers", func(db *gorm.DB) *gorm.DB { return db.Order("code ASC") })
}

func mapLookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order lookup failed")
}

type failureRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewFailureRepository builds the dead-letter repository for materialization failures.
func NewFailureRepository(db *gorm.DB) FailureRepository {
	return &failureRepository{db: db, now: time.Now}
}

func (r *failureRepository) Insert(ctx context.Context, failure *models.MaterializationFailure) error {
	if err := r.db.WithContext(ctx).Create(failure).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record materialization failure")
	}
	return nil
}

func (r *failureRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.MaterializationFailure, error) {
	var rows []models.MaterializationFailure
	query := r.db.WithContext(ctx).
		Where("resolved_at IS NULL AND retryable = ?", true).
		Order("created_at ASC")
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list materialization failures")
	}
	return rows, nil
}

func (r *failureRepository) ListUnresolved(ctx context.Context, limit int) ([]models.MaterializationFailure, error) {
	var rows []models.MaterializationFailure
	query := r.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list materialization failures")
	}
	return rows, nil
}

func (r *failureRepository) MarkResolved(ctx context.Context, id uuid.UUID, orderID *uuid.UUID) error {
	now := r.now().UTC()
	updates := map[string]any{
		"resolved_at":     now,
		"last_attempt_at": now,
		"attempt_count":   gorm.Expr("attempt_count + 1"),
		"updated_at":      now,
	}
	if orderID != nil {
		updates["order_id"] = *orderID
	}
	err := r.db.WithContext(ctx).
		Model(&models.MaterializationFailure{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve materialization failure")
	}
	return nil
}

func (r *failureRepository) MarkAttempt(ctx context.Context, id uuid.UUID, errMsg string, retryable bool) error {
	now := r.now().UTC()
	updates := map[string]any{
		"last_attempt_at": now,
		"attempt_count":   gorm.Expr("attempt_count + 1"),
		"retryable":       retryable,
		"updated_at":      now,
	}
	if errMsg != "" {
		updates["error_message"] = truncate(errMsg, maxErrorLength)
	}
	err := r.db.WithContext(ctx).
		Model(&models.MaterializationFailure{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record materialization attempt")
	}
	return nil
}

const maxErrorLength = 1024

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
