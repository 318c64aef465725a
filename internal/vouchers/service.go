package vouchers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/pkg/auth"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox/payloads"
)

// Reasons carried in STATE_CONFLICT details when a redeem is refused.
const (
	ReasonAlreadyRedeemed = "already_redeemed"
	ReasonExpired         = "expired"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type artifactURLs interface {
	URL(ctx context.Context, code string) (string, error)
}

type redemptionRecorder interface {
	Redemption(outcome string)
	VouchersExpired(n int64)
}

type ServiceParams struct {
	Repo      *Repository
	Tx        txRunner
	Outbox    outbox.Emitter
	Artifacts artifactURLs
	Metrics   redemptionRecorder
	Logger    *logger.Logger
}

// Service runs the voucher state machine: ISSUED -> REDEEMED | EXPIRED.
type Service struct {
	repo      *Repository
	tx        txRunner
	outbox    outbox.Emitter
	artifacts artifactURLs
	metrics   redemptionRecorder
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "voucher repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &Service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		artifacts: params.Artifacts,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Details is the read model for a single voucher.
type Details struct {
	Voucher   models.Voucher
	Status    enums.VoucherStatus
	CanRedeem bool
}

// Wallet groups a customer's vouchers by effective status.
type Wallet struct {
	Active   []models.Voucher
	Redeemed []models.Voucher
	Expired  []models.Voucher
}

// EffectiveStatus reports EXPIRED for an ISSUED voucher past its expiry even
// before the sweep has persisted it.
func EffectiveStatus(v models.Voucher, now time.Time) enums.VoucherStatus {
	if v.Status == enums.VoucherStatusIssued && v.IsPastExpiry(now) {
		return enums.VoucherStatusExpired
	}
	return v.Status
}

// Redeem transitions the voucher identified by code to REDEEMED. Checks run in
// a fixed order: existence, staff capability, then state.
func (s *Service) Redeem(ctx context.Context, code string, actor auth.Actor) (*models.Voucher, error) {
	code = NormalizeCode(code)
	if _, err := s.repo.FindByCode(ctx, code); err != nil {
		s.record("not_found")
		return nil, err
	}
	if !actor.IsStaff() {
		s.record("forbidden")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required to redeem vouchers")
	}

	now := s.now().UTC()
	var outcome string
	var current models.Voucher
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		current = *found

		switch current.Status {
		case enums.VoucherStatusRedeemed:
			outcome = ReasonAlreadyRedeemed
			return nil
		case enums.VoucherStatusExpired:
			outcome = ReasonExpired
			return nil
		}

		if current.IsPastExpiry(now) {
			if _, err := repo.MarkExpired(ctx, current.ID, now); err != nil {
				return err
			}
			current.Status = enums.VoucherStatusExpired
			outcome = ReasonExpired
			return nil
		}

		ok, err := repo.MarkRedeemed(ctx, current.ID, actor.UserID, now)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent request won; report what it left behind.
			latest, err := repo.FindByCode(ctx, code)
			if err != nil {
				return err
			}
			current = *latest
			outcome = ReasonAlreadyRedeemed
			if latest.Status == enums.VoucherStatusExpired {
				outcome = ReasonExpired
			}
			return nil
		}

		current.Status = enums.VoucherStatusRedeemed
		current.RedeemedAt = &now
		current.RedeemedBy = &actor.UserID
		outcome = "redeemed"
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVoucherRedeemed,
			AggregateType: enums.AggregateVoucher,
			AggregateID:   current.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			OccurredAt:    now,
			Data: payloads.VoucherRedeemedEvent{
				VoucherID:  current.ID,
				Code:       current.Code,
				UserID:     current.UserID,
				ServiceID:  current.ServiceID,
				RedeemedBy: actor.UserID,
				RedeemedAt: now,
			},
		})
	})
	if err != nil {
		s.record("error")
		return nil, err
	}
	s.record(outcome)

	switch outcome {
	case ReasonAlreadyRedeemed:
		details := map[string]any{"reason": ReasonAlreadyRedeemed}
		if current.RedeemedAt != nil {
			details["redeemed_at"] = current.RedeemedAt.UTC()
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "voucher has already been redeemed").WithDetails(details)
	case ReasonExpired:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "voucher has expired").WithDetails(map[string]any{
			"reason":     ReasonExpired,
			"expires_at": current.ExpiresAt.UTC(),
		})
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"voucher_id":  current.ID.String(),
			"redeemed_by": actor.UserID.String(),
		}), "vouchers.redeemed")
	}
	return &current, nil
}

// View returns the voucher for its owner or for staff. Unknown and foreign
// codes produce the same NotFound for everyone else.
func (s *Service) View(ctx context.Context, code string, actor auth.Actor) (*Details, error) {
	v, err := s.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, notVisible()
		}
		return nil, err
	}
	if !actor.IsStaff() && v.UserID != actor.UserID {
		return nil, notVisible()
	}
	status := EffectiveStatus(*v, s.now().UTC())
	return &Details{
		Voucher:   *v,
		Status:    status,
		CanRedeem: actor.IsStaff() && status == enums.VoucherStatusIssued,
	}, nil
}

// Wallet lists the customer's vouchers grouped by effective status.
func (s *Service) Wallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	wallet := &Wallet{
		Active:   []models.Voucher{},
		Redeemed: []models.Voucher{},
		Expired:  []models.Voucher{},
	}
	for _, v := range rows {
		switch EffectiveStatus(v, now) {
		case enums.VoucherStatusIssued:
			wallet.Active = append(wallet.Active, v)
		case enums.VoucherStatusRedeemed:
			wallet.Redeemed = append(wallet.Redeemed, v)
		default:
			wallet.Expired = append(wallet.Expired, v)
		}
	}
	return wallet, nil
}

// QRURL returns where the voucher's QR image can be fetched, rebuilding the
// artifact when the blob store has lost it.
func (s *Service) QRURL(ctx context.Context, code string, actor auth.Actor) (string, error) {
	details, err := s.View(ctx, code, actor)
	if err != nil {
		return "", err
	}
	if s.artifacts == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "qr artifacts unavailable")
	}
	url, err := s.artifacts.URL(ctx, details.Voucher.Code)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build qr artifact")
	}
	return url, nil
}

// ExpireDue persists ISSUED -> EXPIRED for every voucher past its expiry and
// emits one summary event when anything changed.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	var expired int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).ExpireDue(ctx, now)
		if err != nil {
			return err
		}
		expired = n
		if n == 0 {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVouchersExpired,
			AggregateType: enums.AggregateVoucher,
			AggregateID:   uuid.New(),
			OccurredAt:    now,
			Data:          payloads.VouchersExpiredEvent{Count: n, ExpiredAt: now},
		})
	})
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.VouchersExpired(expired)
	}
	return expired, nil
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.Redemption(outcome)
	}
}

func notVisible() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
}
