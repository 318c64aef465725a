package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/pawpass-backend/internal/checkout"
	"github.com/angelmondragon/pawpass-backend/internal/orders"
	pkgcheckout "github.com/angelmondragon/pawpass-backend/pkg/checkout"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
)

// Outcomes recorded per handled event.
const (
	OutcomeMaterialized = "materialized"
	OutcomeDuplicate    = "duplicate"
	OutcomeIgnored      = "ignored"
	OutcomeUnpaid       = "unpaid"
	OutcomeBadMetadata  = "bad_metadata"
	OutcomeUnknownUser  = "unknown_user"
	OutcomeDeadLettered = "dead_lettered"
)

type materializer interface {
	Materialize(ctx context.Context, in orders.Input) (*orders.Result, error)
}

type deadLetterRecorder interface {
	RecordOrderFailure(ctx context.Context, in orders.Input, cause error) error
	RecordLineFailures(ctx context.Context, in orders.Input, res *orders.Result) error
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type outcomeRecorder interface {
	WebhookEvent(outcome string)
}

type ServiceParams struct {
	Materializer materializer
	DeadLetters  deadLetterRecorder
	Users        userLookup
	Metrics      outcomeRecorder
	Logger       *logger.Logger
	Currency     string
}

// Service turns verified Stripe checkout events into orders.
type Service struct {
	materializer materializer
	deadLetters  deadLetterRecorder
	users        userLookup
	metrics      outcomeRecorder
	logg         *logger.Logger
	currency     string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Materializer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "materializer required")
	}
	if params.DeadLetters == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dead letter recorder required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user lookup required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "eur"
	}
	return &Service{
		materializer: params.Materializer,
		deadLetters:  params.DeadLetters,
		users:        params.Users,
		metrics:      params.Metrics,
		logg:         params.Logger,
		currency:     currency,
	}, nil
}

// HandleEvent processes one verified event. It returns an error only when the
// event itself is malformed or when a failure could not even be recorded; every
// other outcome is acknowledged so the provider stops redelivering.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
		}
		if sess.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
		}
		return s.handleSession(ctx, event, &sess)
	default:
		s.record(OutcomeIgnored)
		return nil
	}
}

func (s *Service) handleSession(ctx context.Context, event *stripe.Event, sess *stripe.CheckoutSession) error {
	if s.logg != nil {
		ctx = s.logg.WithFields(s.logg.WithPaymentSession(ctx, sess.ID), map[string]any{
			"event_id":   event.ID,
			"event_type": string(event.Type),
		})
	}

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		s.warn(ctx, "webhook.session_not_paid", map[string]any{"payment_status": string(sess.PaymentStatus)})
		s.record(OutcomeUnpaid)
		return nil
	}

	meta, err := pkgcheckout.Parse(sess.Metadata)
	if err != nil {
		s.warn(ctx, "webhook.metadata_invalid", map[string]any{"error": err.Error()})
		s.record(OutcomeBadMetadata)
		return nil
	}

	in := checkout.MaterializeInput(sess.ID, string(sess.Currency), meta, s.currency)

	if _, err := s.users.FindByID(ctx, meta.UserID); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.warn(ctx, "webhook.unknown_user", map[string]any{"user_id": meta.UserID.String()})
			s.record(OutcomeUnknownUser)
			return nil
		}
		return s.deadLetter(ctx, in, err)
	}

	res, err := s.materializer.Materialize(ctx, in)
	if err != nil {
		return s.deadLetter(ctx, in, err)
	}

	if res.Created && len(res.FailedLines()) > 0 {
		if err := s.deadLetters.RecordLineFailures(ctx, in, res); err != nil && s.logg != nil {
			s.logg.Error(ctx, "webhook.record_line_failures", err)
		}
	}
	if res.Created {
		s.record(OutcomeMaterialized)
	} else {
		s.record(OutcomeDuplicate)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, in orders.Input, cause error) error {
	if s.logg != nil {
		s.logg.Error(ctx, "webhook.materialization_failed", cause)
	}
	if err := s.deadLetters.RecordOrderFailure(ctx, in, cause); err != nil {
		// nothing recorded: let the provider redeliver
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record materialization failure")
	}
	s.record(OutcomeDeadLettered)
	return nil
}

func (s *Service) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
	}
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookEvent(outcome)
	}
}
