package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox/registry"
)

// dispatch publishes one row and records the outcome on tx: published, retried
// later, or parked in the dead letter table.
func (r *Relay) dispatch(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	fields := rowFields(row)
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return r.park(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["event_id"] = resolved.Envelope.EventID
	fields["topic"] = resolved.Descriptor.Topic

	sendErr := r.send(ctx, row, resolved)
	attempt := row.AttemptCount + 1
	switch {
	case sendErr == nil:
		if err := r.store.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox.published")
		return nil
	case registry.IsPermanent(sendErr):
		return r.park(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, sendErr, fields)
	case attempt >= r.maxAttempts:
		fields["attempt_count"] = attempt
		return r.park(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", attempt, sendErr), fields)
	}

	fields["attempt_count"] = attempt
	fields["error"] = sendErr.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.publish_failed")
	if err := r.store.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.dead_lettered")

	if err := r.dead.Park(tx, row, reason, cause); err != nil {
		return fmt.Errorf("park %s: %w", row.ID, err)
	}
	if err := r.store.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publishers(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("%w %s", errNoPublisher, topic))
	}

	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	res := pub.Publish(sendCtx, buildMessage(row, resolved))
	if res == nil {
		return registry.Permanent(fmt.Errorf("publisher for %s returned no result", topic))
	}
	_, err := res.Get(sendCtx)
	return err
}

// buildMessage ships the stored envelope untouched; attributes let
// subscribers filter without decoding the body.
func buildMessage(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}
