package vouchers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
)

const (
	defaultValidityMonths = 18
	defaultCodeRetries    = 5
)

// Issuer creates the vouchers for an order line.
type Issuer struct {
	repo           *Repository
	validityMonths int
	codeRetries    int
	generate       func() (string, error)
}

func NewIssuer(repo *Repository, validityMonths, codeRetries int) *Issuer {
	if validityMonths <= 0 {
		validityMonths = defaultValidityMonths
	}
	if codeRetries <= 0 {
		codeRetries = defaultCodeRetries
	}
	return &Issuer{
		repo:           repo,
		validityMonths: validityMonths,
		codeRetries:    codeRetries,
		generate:       GenerateCode,
	}
}

// ExpiresAt returns the expiry for a voucher issued at issuedAt.
func (i *Issuer) ExpiresAt(issuedAt time.Time) time.Time {
	return issuedAt.AddDate(0, i.validityMonths, 0)
}

// Issue inserts one ISSUED voucher per unit of item.Quantity inside tx. Code
// collisions are absorbed by regenerating up to the retry bound.
func (i *Issuer) Issue(ctx context.Context, tx *gorm.DB, item models.OrderItem, userID uuid.UUID, issuedAt time.Time) ([]models.Voucher, error) {
	repo := i.repo.WithTx(tx)
	issuedAt = issuedAt.UTC()
	out := make([]models.Voucher, 0, item.Quantity)
	for n := 0; n < item.Quantity; n++ {
		v, err := i.issueOne(ctx, repo, item, userID, issuedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func (i *Issuer) issueOne(ctx context.Context, repo *Repository, item models.OrderItem, userID uuid.UUID, issuedAt time.Time) (*models.Voucher, error) {
	for attempt := 0; attempt < i.codeRetries; attempt++ {
		code, err := i.generate()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate voucher code")
		}
		v := &models.Voucher{
			Code:        code,
			OrderItemID: item.ID,
			UserID:      userID,
			ServiceID:   item.ServiceID,
			Status:      enums.VoucherStatusIssued,
			IssuedAt:    issuedAt,
			ExpiresAt:   i.ExpiresAt(issuedAt),
			QRAssetKey:  QRKey(code),
		}
		inserted, err := repo.InsertIfAbsent(ctx, v)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert voucher")
		}
		if inserted {
			return v, nil
		}
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "no unique voucher code after %d attempts", i.codeRetries)
}
