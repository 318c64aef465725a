package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/internal/orders"
)

type fakeExpirer struct {
	n     int64
	err   error
	calls int
}

func (f *fakeExpirer) ExpireDue(context.Context) (int64, error) {
	f.calls++
	return f.n, f.err
}

func TestVoucherExpiryJob(t *testing.T) {
	expirer := &fakeExpirer{n: 4}
	job, err := NewVoucherExpiryJob(testLogger(), expirer)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != "voucher_expiry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected one call, got %d", expirer.calls)
	}

	expirer.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeReplayer struct {
	stats       orders.RetryStats
	err         error
	maxAttempts int
	limit       int
}

func (f *fakeReplayer) Retry(_ context.Context, maxAttempts, limit int) (orders.RetryStats, error) {
	f.maxAttempts = maxAttempts
	f.limit = limit
	return f.stats, f.err
}

func TestMaterializationRetryJobUsesConfiguredLimits(t *testing.T) {
	replayer := &fakeReplayer{stats: orders.RetryStats{Attempted: 2, Resolved: 2}}
	job, err := NewMaterializationRetryJob(MaterializationRetryJobParams{
		Logger:      testLogger(),
		DeadLetters: replayer,
		MaxAttempts: 3,
		BatchSize:   10,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if replayer.maxAttempts != 3 || replayer.limit != 10 {
		t.Fatalf("unexpected limits %d/%d", replayer.maxAttempts, replayer.limit)
	}
}

func TestMaterializationRetryJobDefaultsAndErrors(t *testing.T) {
	replayer := &fakeReplayer{
		stats: orders.RetryStats{Attempted: 1, Failed: 1},
		err:   errors.New("1 lines still failing"),
	}
	job, err := NewMaterializationRetryJob(MaterializationRetryJobParams{
		Logger:      testLogger(),
		DeadLetters: replayer,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected failing entries to surface")
	}
	if replayer.maxAttempts != defaultRetryMaxAttempts || replayer.limit != defaultRetryBatchSize {
		t.Fatalf("expected defaults, got %d/%d", replayer.maxAttempts, replayer.limit)
	}
}

type fakeOutboxRetentionRepo struct {
	lastCutoff time.Time
	limits     []int
	remaining  int64
	err        error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	f.lastCutoff = cutoff
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	n := min(f.remaining, int64(limit))
	f.remaining -= n
	return n, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestOutboxRetentionJobPrunesInBatches(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{remaining: 7}
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: repo,
		BatchSize:  3,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if expected := now.Add(-defaultOutboxRetention); !repo.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, repo.lastCutoff)
	}
	if len(repo.limits) != 3 || repo.remaining != 0 {
		t.Fatalf("expected three batches draining the backlog, got %v remaining=%d", repo.limits, repo.remaining)
	}

	repo.err = errors.New("boom")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestOutboxRetentionJobHonorsCustomWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: repo,
		Retention:  48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !repo.lastCutoff.Equal(now.Add(-48 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", repo.lastCutoff)
	}
	if len(repo.limits) != 1 || repo.limits[0] != defaultPruneBatchSize {
		t.Fatalf("expected one default-sized batch, got %v", repo.limits)
	}
}
