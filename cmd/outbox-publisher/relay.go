package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	maxIdleBackoff     = 10 * time.Second
	publishTimeout     = 15 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	Park(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// RelayDeps wires a Relay. Publishers returns nil for topics it cannot serve.
type RelayDeps struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          dbClient
	PubSub      pinger
	Store       outboxStore
	Registry    resolver
	DeadLetters deadLetters
	Publishers  func(topic string) topicPublisher
}

// Relay drains outbox_events into Pub/Sub. Each batch runs in one transaction
// holding row locks, so concurrent relays never publish the same row.
type Relay struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pinger
	store       outboxStore
	registry    resolver
	dead        deadLetters
	publishers  func(topic string) topicPublisher
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(deps RelayDeps) (*Relay, error) {
	var errs error
	need := func(ok bool, what string) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%s is required", what))
		}
	}
	need(deps.Logger != nil, "logger")
	need(deps.DB != nil, "database client")
	need(deps.PubSub != nil, "pubsub client")
	need(deps.Store != nil, "outbox store")
	need(deps.Registry != nil, "event registry")
	need(deps.DeadLetters != nil, "dead letter store")
	need(deps.Publishers != nil, "publisher factory")
	if errs != nil {
		return nil, errs
	}

	r := &Relay{
		logg:        deps.Logger,
		db:          deps.DB,
		pubsub:      deps.PubSub,
		store:       deps.Store,
		registry:    deps.Registry,
		dead:        deps.DeadLetters,
		publishers:  deps.Publishers,
		batchSize:   deps.Outbox.BatchSize,
		maxAttempts: deps.Outbox.MaxAttempts,
		poll:        time.Duration(deps.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPoll
	}
	return r, nil
}

// Run loops until ctx is cancelled. A full batch is followed immediately by
// the next one; an empty batch waits one poll interval; a failed batch backs
// off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	for name, dep := range map[string]pinger{"database": r.db, "pubsub": r.pubsub} {
		if err := dep.Ping(ctx); err != nil {
			r.logg.Error(r.logg.WithField(ctx, "dependency", name), "outbox.dependency_unavailable", err)
			return fmt.Errorf("%s ping: %w", name, err)
		}
	}

	wait := newBackoff(r.poll, maxIdleBackoff)
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox.relay_stopped")
			return err
		}

		handled, err := r.drain(ctx)
		var pause time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.batch_failed", err)
			pause = wait.failure()
		case handled > 0:
			wait.reset()
			continue
		default:
			wait.reset()
			pause = wait.idle()
		}
		if err := sleepCtx(ctx, pause); err != nil {
			r.logg.Info(ctx, "outbox.relay_stopped")
			return err
		}
	}
}

// drain handles one locked batch and reports how many rows it touched. Only
// bookkeeping failures abort the batch; a publish failure stays on its row.
func (r *Relay) drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, row := range rows {
			if err := r.dispatch(ctx, tx, row); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var errNoPublisher = errors.New("no publisher for topic")
