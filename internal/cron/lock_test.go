package cron

import (
	"context"
	"testing"
	"time"
)

type memoryLockStore struct {
	values map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) ReleaseIfOwner(_ context.Context, key, token string) (bool, error) {
	if m.values[key] != token {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExclusive(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "pawpass:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "pawpass:lock:cron", time.Minute)

	ok, err := first.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(context.Background()); ok {
		t.Fatal("second holder must not acquire")
	}
	if err := second.Release(context.Background()); err != nil {
		t.Fatalf("release without ownership: %v", err)
	}
	if _, held := store.values["pawpass:lock:cron"]; !held {
		t.Fatal("non-owner release removed the lock")
	}

	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(context.Background()); !ok {
		t.Fatal("lock should be free after owner release")
	}
}

func TestRedisLockStaleOwnerKeepsNewHolder(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	stale, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := stale.Acquire(context.Background()); !ok {
		t.Fatal("acquire")
	}
	// lease expired and another worker took over
	store.values["k"] = "other-worker"

	if err := stale.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["k"] != "other-worker" {
		t.Fatal("stale owner deleted the new holder's lock")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected nil client error")
	}
	if _, err := NewRedisLock(&memoryLockStore{}, "", 0); err == nil {
		t.Fatal("expected empty key error")
	}
	lock, err := NewRedisLock(&memoryLockStore{}, "k", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", lock.ttl)
	}
}
