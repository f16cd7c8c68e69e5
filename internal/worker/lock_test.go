package worker

import (
	"context"
	"testing"
	"time"
)

type leaseStore struct {
	values map[string]string
}

func (s *leaseStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, held := s.values[key]; held {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *leaseStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	if s.values[key] != value {
		return false, nil
	}
	delete(s.values, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := &leaseStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "pp:lock:worker", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "pp:lock:worker", time.Second)
	ctx := context.Background()

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected first acquire to win, ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second acquire must lose while the lease is held")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release without lease: %v", err)
	}
	if _, held := store.values["pp:lock:worker"]; !held {
		t.Fatal("a loser must not clear the lease")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestRedisLockExpiredHolderCannotFreeNewLease(t *testing.T) {
	store := &leaseStore{values: map[string]string{}}
	stale, _ := NewRedisLock(store, "pp:lock:worker", time.Second)
	fresh, _ := NewRedisLock(store, "pp:lock:worker", time.Second)
	ctx := context.Background()

	if ok, _ := stale.Acquire(ctx); !ok {
		t.Fatal("expected stale holder to acquire")
	}
	delete(store.values, "pp:lock:worker") // lease expired
	if ok, _ := fresh.Acquire(ctx); !ok {
		t.Fatal("expected fresh holder to acquire after expiry")
	}
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, held := store.values["pp:lock:worker"]; !held {
		t.Fatal("stale holder cleared someone else's lease")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Second); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewRedisLock(&leaseStore{}, "", time.Second); err == nil {
		t.Fatal("expected error for empty key")
	}
}
