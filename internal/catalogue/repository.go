package catalogue

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
)

// Repository reads services and categories.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalogue repo bound to the provided GORM DB.
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

// FindService loads a service regardless of its active flag. Historical
// purchases still resolve after a service is retired.
func (r *Repository) FindService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var svc models.Service
	err := r.db.WithContext(ctx).First(&svc, "id = ?", id).Error
	if err != nil {
		return nil, mapLookupErr(err, "service not found")
	}
	return &svc, nil
}

// FindActiveService loads a service that can currently be sold.
func (r *Repository) FindActiveService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var svc models.Service
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&svc).Error
	if err != nil {
		return nil, mapLookupErr(err, "service not found or inactive")
	}
	return &svc, nil
}

// ListActiveServices returns sellable services ordered by name.
func (r *Repository) ListActiveServices(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&services).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list services")
	}
	return services, nil
}

func mapLookupErr(err error, notFoundMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "catalogue lookup failed")
}
