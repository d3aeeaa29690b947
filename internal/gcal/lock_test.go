package gcal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (*RedisRefreshLocker, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })

	locker := NewRedisRefreshLocker(client, 15*time.Second)
	locker.retries = 0
	locker.interval = time.Millisecond
	return locker, m
}

func TestRedisRefreshLocker_ExclusiveUntilUnlock(t *testing.T) {
	locker, m := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "user-1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !m.Exists(lockKeyPrefix + "user-1") {
		t.Fatal("lock key should exist in redis")
	}

	if _, err := locker.Lock(ctx, "user-1"); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("second Lock() error = %v, want ErrLockNotAcquired", err)
	}

	// 別ユーザーのロックは独立
	unlockOther, err := locker.Lock(ctx, "user-2")
	if err != nil {
		t.Fatalf("Lock(user-2) error = %v", err)
	}
	unlockOther()

	unlock()
	if m.Exists(lockKeyPrefix + "user-1") {
		t.Fatal("lock key should be deleted after unlock")
	}

	unlock2, err := locker.Lock(ctx, "user-1")
	if err != nil {
		t.Fatalf("Lock() after unlock error = %v", err)
	}
	unlock2()
}

func TestRedisRefreshLocker_ExpiresAfterTTL(t *testing.T) {
	locker, m := newTestLocker(t)
	ctx := context.Background()

	if _, err := locker.Lock(ctx, "user-1"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	m.FastForward(16 * time.Second)

	unlock, err := locker.Lock(ctx, "user-1")
	if err != nil {
		t.Fatalf("Lock() after TTL error = %v", err)
	}
	unlock()
}

func TestRedisRefreshLocker_StaleUnlockDoesNotReleaseNewOwner(t *testing.T) {
	locker, m := newTestLocker(t)
	ctx := context.Background()

	staleUnlock, err := locker.Lock(ctx, "user-1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	m.FastForward(16 * time.Second)

	unlock, err := locker.Lock(ctx, "user-1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer unlock()

	staleUnlock()
	if !m.Exists(lockKeyPrefix + "user-1") {
		t.Fatal("stale unlock must not delete the current owner's lock")
	}
}

func TestRedisRefreshLocker_ContextCanceled(t *testing.T) {
	locker, _ := newTestLocker(t)
	locker.retries = 100
	locker.interval = 50 * time.Millisecond

	if _, err := locker.Lock(context.Background(), "user-1"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locker.Lock(ctx, "user-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Lock() error = %v, want context.Canceled", err)
	}
}

func TestNoopRefreshLocker(t *testing.T) {
	unlock, err := NoopRefreshLocker{}.Lock(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	unlock()
}
