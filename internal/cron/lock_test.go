package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryLocks struct {
	owners map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLocks() *memoryLocks {
	return &memoryLocks{owners: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLocks) AcquireLock(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if _, ok := m.owners[name]; ok {
		return false, nil
	}
	m.owners[name] = owner
	m.ttls[name] = ttl
	return true, nil
}

func (m *memoryLocks) ReleaseLock(_ context.Context, name, owner string) (bool, error) {
	if m.owners[name] != owner {
		return false, nil
	}
	delete(m.owners, name)
	return true, nil
}

func TestRedisLockIsExclusiveAcrossWorkers(t *testing.T) {
	store := newMemoryLocks()
	first, err := NewRedisLock(store, "cron-worker", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "cron-worker", 0)

	ctx := context.Background()
	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttls["cron-worker"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls["cron-worker"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second worker acquired a held lock")
	}
	// never acquired, so nothing to release
	if err := second.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, ok := store.owners["cron-worker"]; !ok {
		t.Fatal("lock freed by non-owner")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock to be free after owner release")
	}
}

func TestRedisLockReportsExpiredLock(t *testing.T) {
	store := newMemoryLocks()
	lock, _ := NewRedisLock(store, "cron-worker", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	// ttl elapsed and another replica took over
	store.owners["cron-worker"] = "other-replica"

	if err := lock.Release(ctx); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	if store.owners["cron-worker"] != "other-replica" {
		t.Fatal("release must not free another replica's lock")
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisLock(newMemoryLocks(), "", 0); err == nil {
		t.Fatal("expected error for empty name")
	}
}
