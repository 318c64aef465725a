package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/pawpass-backend/internal/orders"
	pkgcheckout "github.com/angelmondragon/pawpass-backend/pkg/checkout"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
)

type stubMaterializer struct {
	calls  []orders.Input
	result *orders.Result
	err    error
}

func (s *stubMaterializer) Materialize(_ context.Context, in orders.Input) (*orders.Result, error) {
	s.calls = append(s.calls, in)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &orders.Result{Order: &models.Order{ID: uuid.New()}, Created: true}, nil
}

type stubDeadLetters struct {
	orderFailures []error
	lineFailures  int
	err           error
}

func (s *stubDeadLetters) RecordOrderFailure(_ context.Context, _ orders.Input, cause error) error {
	if s.err != nil {
		return s.err
	}
	s.orderFailures = append(s.orderFailures, cause)
	return nil
}

func (s *stubDeadLetters) RecordLineFailures(context.Context, orders.Input, *orders.Result) error {
	s.lineFailures++
	return nil
}

type stubUsers struct {
	known map[uuid.UUID]bool
	err   error
}

func (s stubUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.known[id] {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return &models.User{ID: id}, nil
}

type outcomes []string

func (o *outcomes) WebhookEvent(outcome string) { *o = append(*o, outcome) }

type harness struct {
	svc          *Service
	materializer *stubMaterializer
	deadLetters  *stubDeadLetters
	outcomes     *outcomes
	userID       uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	userID := uuid.New()
	h := &harness{
		materializer: &stubMaterializer{},
		deadLetters:  &stubDeadLetters{},
		outcomes:     &outcomes{},
		userID:       userID,
	}
	svc, err := NewService(ServiceParams{
		Materializer: h.materializer,
		DeadLetters:  h.deadLetters,
		Users:        stubUsers{known: map[uuid.UUID]bool{userID: true}},
		Metrics:      h.outcomes,
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	h.svc = svc
	return h
}

func (h *harness) last() string {
	o := *h.outcomes
	if len(o) == 0 {
		return ""
	}
	return o[len(o)-1]
}

func sessionEvent(t *testing.T, eventType stripe.EventType, sess *stripe.CheckoutSession) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(sess)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{ID: "evt_" + uuid.NewString(), Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func paidSession(t *testing.T, userID uuid.UUID) *stripe.CheckoutSession {
	t.Helper()
	meta, err := pkgcheckout.Metadata{
		UserID:      userID,
		CartSession: "cart-1",
		Items: []pkgcheckout.LineSnapshot{
			{ID: uuid.New(), Name: "Dog walk", Price: decimal.RequireFromString("12.50"), Quantity: 1},
		},
	}.Encode()
	if err != nil {
		t.Fatalf("encode metadata: %v", err)
	}
	return &stripe.CheckoutSession{
		ID:            "cs_test_" + uuid.NewString(),
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Status:        stripe.CheckoutSessionStatusComplete,
		Currency:      stripe.CurrencyEUR,
		Metadata:      meta,
	}
}

func TestHandleCompletedSessionMaterializes(t *testing.T) {
	h := newHarness(t)
	sess := paidSession(t, h.userID)

	if err := h.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, sess)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(h.materializer.calls) != 1 {
		t.Fatalf("expected one materialization, got %d", len(h.materializer.calls))
	}
	in := h.materializer.calls[0]
	if in.PaymentSessionID != sess.ID || in.UserID != h.userID || in.CartSession != "cart-1" {
		t.Fatalf("unexpected input %+v", in)
	}
	if h.last() != OutcomeMaterialized {
		t.Fatalf("expected materialized outcome, got %q", h.last())
	}
}

func TestHandleAsyncPaymentSucceeded(t *testing.T) {
	h := newHarness(t)
	h.materializer.result = &orders.Result{Order: &models.Order{ID: uuid.New()}}

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded, paidSession(t, h.userID))
	if err := h.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if h.last() != OutcomeDuplicate {
		t.Fatalf("expected duplicate outcome, got %q", h.last())
	}
}

func TestHandleUnpaidSessionIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	sess := paidSession(t, h.userID)
	sess.PaymentStatus = stripe.CheckoutSessionPaymentStatusUnpaid

	if err := h.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, sess)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(h.materializer.calls) != 0 {
		t.Fatal("unpaid session must not materialize")
	}
	if h.last() != OutcomeUnpaid {
		t.Fatalf("unexpected outcome %q", h.last())
	}
}

func TestHandleBadMetadataIsAcknowledgedWithoutSideEffects(t *testing.T) {
	h := newHarness(t)
	sess := paidSession(t, h.userID)
	sess.Metadata[pkgcheckout.KeyCartItems] = "[{'id': 'x'}]"

	if err := h.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, sess)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(h.materializer.calls) != 0 || len(h.deadLetters.orderFailures) != 0 {
		t.Fatal("bad metadata must not have side effects")
	}
	if h.last() != OutcomeBadMetadata {
		t.Fatalf("unexpected outcome %q", h.last())
	}
}

func TestHandleUnknownUserIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	sess := paidSession(t, uuid.New())

	if err := h.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, sess)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(h.materializer.calls) != 0 {
		t.Fatal("unknown user must not materialize")
	}
	if h.last() != OutcomeUnknownUser {
		t.Fatalf("unexpected outcome %q", h.last())
	}
}

func TestHandleMaterializationFailureIsDeadLettered(t *testing.T) {
	h := newHarness(t)
	h.materializer.err = pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "create order")

	if err := h.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, paidSession(t, h.userID))); err != nil {
		t.Fatalf("expected acknowledgement, got %v", err)
	}
	if len(h.deadLetters.orderFailures) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(h.deadLetters.orderFailures))
	}
	if h.last() != OutcomeDeadLettered {
		t.Fatalf("unexpected outcome %q", h.last())
	}
}

func TestHandleFailsWhenDeadLetterCannotBeWritten(t *testing.T) {
	h := newHarness(t)
	h.materializer.err = errors.New("db down")
	h.deadLetters.err = errors.New("db still down")

	err := h.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, paidSession(t, h.userID)))
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestHandleRecordsFailedLines(t *testing.T) {
	h := newHarness(t)
	h.materializer.result = &orders.Result{
		Order:   &models.Order{ID: uuid.New()},
		Created: true,
		Report:  []orders.LineResult{{Status: orders.LineFailed, Reason: "service_not_found"}},
	}

	if err := h.svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, paidSession(t, h.userID))); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if h.deadLetters.lineFailures != 1 {
		t.Fatalf("expected failed lines recorded once, got %d", h.deadLetters.lineFailures)
	}
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	h := newHarness(t)
	event := &stripe.Event{Type: stripe.EventTypeInvoicePaid, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	if err := h.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if h.last() != OutcomeIgnored {
		t.Fatalf("unexpected outcome %q", h.last())
	}
}

func TestHandleMalformedPayloadFails(t *testing.T) {
	h := newHarness(t)
	event := &stripe.Event{Type: stripe.EventTypeCheckoutSessionCompleted, Data: &stripe.EventData{Raw: []byte(`{"id": 5`)}}
	err := h.svc.HandleEvent(context.Background(), event)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryIdempotency) Get(_ context.Context, key string) (string, error) {
	if m.keys[key] {
		return "1", nil
	}
	return "", errors.New("nil")
}

func (m *memoryIdempotency) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryIdempotency) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func TestIdempotencyGuardClaimsOnce(t *testing.T) {
	store := &memoryIdempotency{keys: map[string]bool{}}
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe_webhook")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()
	claimed, err := guard.Claim(ctx, "evt_1")
	if err != nil || !claimed {
		t.Fatalf("first delivery: claimed=%v err=%v", claimed, err)
	}
	claimed, err = guard.Claim(ctx, "evt_1")
	if err != nil || claimed {
		t.Fatalf("second delivery: claimed=%v err=%v", claimed, err)
	}
	if err := guard.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	claimed, _ = guard.Claim(ctx, "evt_1")
	if !claimed {
		t.Fatal("expected claim to succeed after release")
	}
}

func TestIdempotencyGuardRejectsBlankIDs(t *testing.T) {
	guard, err := NewIdempotencyGuard(&memoryIdempotency{keys: map[string]bool{}}, time.Hour, "stripe_webhook")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	if _, err := guard.Claim(context.Background(), "  "); err == nil {
		t.Fatal("expected blank event id to fail")
	}
	if _, err := NewIdempotencyGuard(&memoryIdempotency{}, time.Hour, " "); err == nil {
		t.Fatal("expected blank scope to fail")
	}
}
