package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/pawpass-backend/internal/orders"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
)

const (
	defaultRetryMaxAttempts = 8
	defaultRetryBatchSize   = 25
)

type deadLetterReplayer interface {
	Retry(ctx context.Context, maxAttempts, limit int) (orders.RetryStats, error)
}

type MaterializationRetryJobParams struct {
	Logger      *logger.Logger
	DeadLetters deadLetterReplayer
	MaxAttempts int
	BatchSize   int
}

type materializationRetryJob struct {
	logg        *logger.Logger
	deadLetters deadLetterReplayer
	maxAttempts int
	batchSize   int
}

// NewMaterializationRetryJob replays unresolved retryable dead letters.
func NewMaterializationRetryJob(params MaterializationRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DeadLetters == nil {
		return nil, fmt.Errorf("dead letter queue required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryMaxAttempts
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRetryBatchSize
	}
	return &materializationRetryJob{
		logg:        params.Logger,
		deadLetters: params.DeadLetters,
		maxAttempts: maxAttempts,
		batchSize:   batch,
	}, nil
}

func (j *materializationRetryJob) Name() string { return "materialization_retry" }

// Run reports an error when any entry is still failing, so the failure counter
// reflects a stuck queue; resolved entries are committed either way.
func (j *materializationRetryJob) Run(ctx context.Context) error {
	stats, err := j.deadLetters.Retry(ctx, j.maxAttempts, j.batchSize)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"attempted": stats.Attempted,
		"resolved":  stats.Resolved,
		"failed":    stats.Failed,
	})
	j.logg.Info(logCtx, "cron.materialization_retry")
	if err != nil {
		return fmt.Errorf("materialization retry: %w", err)
	}
	return nil
}
