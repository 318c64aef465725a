package vouchers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
)

// Repository persists vouchers.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByCode loads a voucher and its service.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var v models.Voucher
	err := r.db.WithContext(ctx).
		Preload("Service").
		Where("code = ?", code).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "voucher not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	return &v, nil
}

// ListByUser returns every voucher owned by userID, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Voucher, error) {
	var rows []models.Voucher
	err := r.db.WithContext(ctx).
		Preload("Service").
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Order("code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vouchers")
	}
	return rows, nil
}

// ListByOrderItem returns the vouchers issued for one order line.
func (r *Repository) ListByOrderItem(ctx context.Context, orderItemID uuid.UUID) ([]models.Voucher, error) {
	var rows []models.Voucher
	err := r.db.WithContext(ctx).
		Where("order_item_id = ?", orderItemID).
		Order("code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list line vouchers")
	}
	return rows, nil
}

// InsertIfAbsent inserts v unless its code is already taken. It reports false
// on a code collision so the caller can regenerate.
func (r *Repository) InsertIfAbsent(ctx context.Context, v *models.Voucher) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(v)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkRedeemed performs the ISSUED -> REDEEMED compare-and-set.
func (r *Repository) MarkRedeemed(ctx context.Context, id, by uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND status = ?", id, enums.VoucherStatusIssued).
		Updates(map[string]any{
			"status":      enums.VoucherStatusRedeemed,
			"redeemed_at": at,
			"redeemed_by": by,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "redeem voucher")
	}
	return res.RowsAffected == 1, nil
}

// MarkExpired performs the ISSUED -> EXPIRED compare-and-set for one voucher.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND status = ?", id, enums.VoucherStatusIssued).
		Updates(map[string]any{
			"status":     enums.VoucherStatusExpired,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "expire voucher")
	}
	return res.RowsAffected == 1, nil
}

// ExpireDue moves every ISSUED voucher whose expiry has passed to EXPIRED.
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("status = ? AND expires_at <= ?", enums.VoucherStatusIssued, now).
		Updates(map[string]any{
			"status":     enums.VoucherStatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "expire due vouchers")
	}
	return res.RowsAffected, nil
}
