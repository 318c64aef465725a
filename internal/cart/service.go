package cart

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pawpass-backend/pkg/checkout"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
)

type serviceLookup interface {
	FindActiveService(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

// Service implements cart operations for a single cart session. It never clears
// a cart on its own; that happens once payment is confirmed.
type Service struct {
	store     Store
	catalogue serviceLookup
	now       func() time.Time
}

// NewService builds a cart service backed by the provided store and catalogue.
func NewService(store Store, catalogue serviceLookup) (*Service, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart store required")
	}
	if catalogue == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalogue required")
	}
	return &Service{store: store, catalogue: catalogue, now: time.Now}, nil
}

// Add puts quantity units of a service into the cart, incrementing an existing
// line. The price always comes from the catalogue, and a line never holds more
// than checkout.MaxLineQuantity units.
func (s *Service) Add(ctx context.Context, sessionID string, serviceID uuid.UUID, quantity int) (*View, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a positive integer").
			WithDetails(map[string]any{"quantity": quantity})
	}

	svc, err := s.catalogue.FindActiveService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	held := 0
	idx := c.indexOf(svc.ID)
	if idx >= 0 {
		held = c.Lines[idx].Quantity
	}
	if held+quantity > checkout.MaxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds the per-line limit").
			WithDetails(map[string]any{"quantity": held + quantity, "max": checkout.MaxLineQuantity})
	}

	if idx >= 0 {
		c.Lines[idx].Quantity += quantity
	} else {
		c.Lines = append(c.Lines, Line{
			ServiceID: svc.ID,
			Name:      svc.Name,
			UnitPrice: svc.Price,
			Quantity:  quantity,
		})
	}

	if err := s.save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	return newView(c), nil
}

// Remove deletes the line for serviceID. A missing line yields NotFound, which
// callers present as a notice rather than a failure.
func (s *Service) Remove(ctx context.Context, sessionID string, serviceID uuid.UUID) (*View, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	idx := c.indexOf(serviceID)
	if idx < 0 {
		return newView(c), pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
	}
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)

	if err := s.save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	return newView(c), nil
}

// View returns the priced cart.
func (s *Service) View(ctx context.Context, sessionID string) (*View, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return newView(c), nil
}

// Clear empties the cart session.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if err := s.store.Clear(ctx, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *Service) load(ctx context.Context, sessionID string) (*Cart, error) {
	c, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, sessionID string, c *Cart) error {
	c.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sessionID, c); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return nil
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart session required")
	}
	return nil
}
