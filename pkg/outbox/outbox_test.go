package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/internal/testdb"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	db := testdb.Open(t)
	repo := outbox.NewRepository(db)
	svc := outbox.NewService(repo, nil)
	orderID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderPaidEvent{OrderID: orderID, VoucherCount: 3},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)

	var data payloads.OrderPaidEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, 3, data.VoucherCount)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	db := testdb.Open(t)
	svc := outbox.NewService(outbox.NewRepository(db), nil)

	_ = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventVouchersExpired,
			AggregateType: enums.AggregateVoucher,
			AggregateID:   uuid.New(),
			Data:          payloads.VouchersExpiredEvent{Count: 1},
		}))
		return errors.New("abort")
	})

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	db := testdb.Open(t)
	svc := outbox.NewService(outbox.NewRepository(db), nil)
	err := svc.Emit(context.Background(), db, outbox.DomainEvent{EventType: "nope", AggregateID: uuid.New()})
	assert.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := testdb.Open(t)
	repo := outbox.NewRepository(db)
	first := models.OutboxEvent{
		EventType:     enums.EventVoucherRedeemed,
		AggregateType: enums.AggregateVoucher,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	second := first
	second.AggregateID = uuid.New()
	require.NoError(t, repo.Insert(db, first))
	require.NoError(t, repo.Insert(db, second))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))
	require.NoError(t, repo.MarkTerminalTx(db, rows[1].ID, errors.New("boom"), 3))

	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	db := testdb.Open(t)
	repo := outbox.NewRepository(db)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-time.Hour)
	recent := cutoff.Add(time.Hour)

	for _, publishedAt := range []*time.Time{&old, &recent, nil} {
		require.NoError(t, repo.Insert(db, models.OutboxEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			PublishedAt:   publishedAt,
		}))
	}

	deleted, err := repo.DeletePublishedBefore(db, cutoff, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.EqualValues(t, 2, remaining)
}

func TestRepositoryDeletePublishedBeforeHonorsLimit(t *testing.T) {
	db := testdb.Open(t)
	repo := outbox.NewRepository(db)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		publishedAt := cutoff.Add(-time.Duration(i) * time.Hour)
		require.NoError(t, repo.Insert(db, models.OutboxEvent{
			EventType:     enums.EventVoucherRedeemed,
			AggregateType: enums.AggregateVoucher,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			PublishedAt:   &publishedAt,
		}))
	}

	deleted, err := repo.DeletePublishedBefore(db, cutoff, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	deleted, err = repo.DeletePublishedBefore(db, cutoff, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestDeadLetterStoreParksRow(t *testing.T) {
	db := testdb.Open(t)
	store := outbox.NewDeadLetterStore(db)
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  7,
	}
	require.NoError(t, store.Park(db, row, enums.OutboxDLQReasonMaxAttempts, errors.New(strings.Repeat("x", 4096))))

	found, err := store.FindByEventID(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 7, found.AttemptCount)
	assert.JSONEq(t, `{"version":1}`, string(found.Payload))
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, 1024)

	missing, err := store.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, store.Park(db, row, enums.OutboxDLQErrorReason("bored"), nil))
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := outbox.DecodeEnvelope([]byte(`{"version":1,"eventId":"e1","data":{"count":2}}`))
	require.NoError(t, err)
	assert.Equal(t, "e1", env.EventID)

	_, err = outbox.DecodeEnvelope([]byte(`{"version":1,"eventId":"e1","data":null}`))
	assert.ErrorIs(t, err, outbox.ErrEmptyEventData)

	_, err = outbox.DecodeEnvelope([]byte(`{"version":0,"data":{}}`))
	assert.Error(t, err)
}
