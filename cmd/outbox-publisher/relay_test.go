package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox/registry"
)

const testTopic = "pawpass-domain-events"

func TestDrainKeepsGoingAfterTransientFailure(t *testing.T) {
	store := &fakeStore{rows: []models.OutboxEvent{orderPaidRow(t, 0), orderPaidRow(t, 0)}}
	pub := &fakePublisher{results: []error{errors.New("transient"), nil}}
	relay := newTestRelay(t, store, pub, &fakeResolver{}, &fakeDeadLetters{}, config.OutboxConfig{MaxAttempts: 5})

	handled, err := relay.drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if handled != 2 {
		t.Fatalf("expected 2 rows handled, got %d", handled)
	}
	if len(store.failed) != 1 || store.failed[0] != store.rows[0].ID {
		t.Fatalf("expected first row marked failed, got %v", store.failed)
	}
	if len(store.published) != 1 || store.published[0] != store.rows[1].ID {
		t.Fatalf("expected second row published, got %v", store.published)
	}
}

func TestDispatchSetsMessageAttributes(t *testing.T) {
	row := orderPaidRow(t, 0)
	row.EventType = enums.EventVoucherRedeemed
	row.AggregateType = enums.AggregateVoucher
	row.CreatedAt = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	store := &fakeStore{rows: []models.OutboxEvent{row}}
	pub := &fakePublisher{results: []error{nil}}
	relay := newTestRelay(t, store, pub, &fakeResolver{}, &fakeDeadLetters{}, config.OutboxConfig{})

	var topics []string
	relay.publishers = func(topic string) topicPublisher {
		topics = append(topics, topic)
		return pub
	}
	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(topics) != 1 || topics[0] != testTopic {
		t.Fatalf("unexpected topics %v", topics)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	msg := pub.sent[0]
	want := map[string]string{
		"event_id":       row.ID.String(),
		"event_type":     string(enums.EventVoucherRedeemed),
		"aggregate_type": string(enums.AggregateVoucher),
		"aggregate_id":   row.AggregateID.String(),
		"schema_version": "1",
		"created_at":     "2026-03-01T09:30:00Z",
	}
	for k, v := range want {
		if msg.Attributes[k] != v {
			t.Fatalf("attribute %s = %q, want %q", k, msg.Attributes[k], v)
		}
	}
	if !bytes.Equal(msg.Data, row.Payload) {
		t.Fatal("message body should be the stored envelope")
	}
}

func TestDispatchParksWhenTopicHasNoPublisher(t *testing.T) {
	store := &fakeStore{rows: []models.OutboxEvent{orderPaidRow(t, 0)}}
	dead := &fakeDeadLetters{}
	relay := newTestRelay(t, store, nil, &fakeResolver{}, dead, config.OutboxConfig{})
	relay.publishers = func(string) topicPublisher { return nil }

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dead.parked) != 1 || dead.parked[0].reason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected one non-retryable dead letter, got %+v", dead.parked)
	}
	if !errors.Is(dead.parked[0].cause, errNoPublisher) {
		t.Fatalf("unexpected cause %v", dead.parked[0].cause)
	}
	if len(store.terminal) != 1 || len(store.published) != 0 {
		t.Fatalf("row should be terminal and unpublished: %+v", store)
	}
}

func TestDispatchParksUnresolvableRow(t *testing.T) {
	row := orderPaidRow(t, 0)
	store := &fakeStore{rows: []models.OutboxEvent{row}}
	dead := &fakeDeadLetters{}
	resolver := &fakeResolver{err: registry.Permanent(errors.New("invalid payload"))}
	relay := newTestRelay(t, store, &fakePublisher{}, resolver, dead, config.OutboxConfig{})

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dead.parked) != 1 {
		t.Fatalf("expected dead letter, got %d", len(dead.parked))
	}
	got := dead.parked[0]
	if got.row.ID != row.ID || !bytes.Equal(got.row.Payload, row.Payload) {
		t.Fatal("dead letter should carry the original row")
	}
	if got.reason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected reason %s", got.reason)
	}
}

func TestDispatchParksAtAttemptCeiling(t *testing.T) {
	store := &fakeStore{rows: []models.OutboxEvent{orderPaidRow(t, 1)}}
	dead := &fakeDeadLetters{}
	pub := &fakePublisher{results: []error{errors.New("transient")}}
	relay := newTestRelay(t, store, pub, &fakeResolver{}, dead, config.OutboxConfig{MaxAttempts: 2})

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dead.parked) != 1 || dead.parked[0].reason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max attempts dead letter, got %+v", dead.parked)
	}
	if len(store.failed) != 0 {
		t.Fatal("a parked row should not also be marked failed")
	}
}

func TestNewRelayListsEveryMissingDependency(t *testing.T) {
	_, err := NewRelay(RelayDeps{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"logger", "database client", "pubsub client", "outbox store", "event registry", "dead letter store", "publisher factory"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	b := newBackoff(100*time.Millisecond, time.Second)
	first := b.failure()
	if first < 200*time.Millisecond || first >= 200*time.Millisecond+jitterWindow {
		t.Fatalf("unexpected first backoff %v", first)
	}
	for i := 0; i < 10; i++ {
		b.failure()
	}
	if b.cur != time.Second {
		t.Fatalf("expected cap at 1s, got %v", b.cur)
	}
	b.reset()
	if b.cur != 100*time.Millisecond {
		t.Fatalf("reset should restore base, got %v", b.cur)
	}
}

func newTestRelay(t *testing.T, store outboxStore, pub topicPublisher, res resolver, dead deadLetters, cfg config.OutboxConfig) *Relay {
	t.Helper()
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2
	}
	relay, err := NewRelay(RelayDeps{
		Outbox:      cfg,
		Logger:      logger.New(logger.Options{ServiceName: "outbox-relay-test", Output: io.Discard}),
		DB:          fakeDB{},
		PubSub:      fakeDB{},
		Store:       store,
		Registry:    res,
		DeadLetters: dead,
		Publishers:  func(string) topicPublisher { return pub },
	})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return relay
}

func orderPaidRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.OrderPaidEvent{VoucherCount: 1})
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakeStore struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeStore) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.rows, nil
}

func (f *fakeStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type parked struct {
	row    models.OutboxEvent
	reason enums.OutboxDLQErrorReason
	cause  error
}

type fakeDeadLetters struct {
	parked []parked
}

func (f *fakeDeadLetters) Park(_ *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	f.parked = append(f.parked, parked{row: row, reason: reason, cause: cause})
	return nil
}

// fakeResolver accepts every row and routes it to testTopic, using the row id
// as the envelope event id.
type fakeResolver struct {
	err error
}

func (f *fakeResolver) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: row.EventType, AggregateType: row.AggregateType, Topic: testTopic},
		Envelope:   outbox.PayloadEnvelope{Version: outbox.EnvelopeVersion, EventID: row.ID.String(), OccurredAt: time.Now()},
	}, nil
}

type fakePublisher struct {
	results []error
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	err := f.results[0]
	f.results = f.results[1:]
	return fakeResult{err: err}
}

type fakeResult struct{ err error }

func (f fakeResult) Get(context.Context) (string, error) { return "", f.err }
