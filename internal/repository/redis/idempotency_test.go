package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeCmdable answers only the commands the idempotency store issues.
type fakeCmdable struct {
	goredis.Cmdable
	keys    map[string]time.Duration
	failErr error
}

func newFake() *fakeCmdable {
	return &fakeCmdable{keys: make(map[string]time.Duration)}
}

func (f *fakeCmdable) SetNX(ctx context.Context, key string, _ interface{}, ttl time.Duration) *goredis.BoolCmd {
	cmd := goredis.NewBoolCmd(ctx)
	if f.failErr != nil {
		cmd.SetErr(f.failErr)
		return cmd
	}
	if _, ok := f.keys[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	f.keys[key] = ttl
	cmd.SetVal(true)
	return cmd
}

func (f *fakeCmdable) Expire(ctx context.Context, key string, ttl time.Duration) *goredis.BoolCmd {
	cmd := goredis.NewBoolCmd(ctx)
	if f.failErr != nil {
		cmd.SetErr(f.failErr)
		return cmd
	}
	_, ok := f.keys[key]
	if ok {
		f.keys[key] = ttl
	}
	cmd.SetVal(ok)
	return cmd
}

func TestAcquireLock_OncePerJob(t *testing.T) {
	fake := newFake()
	store := NewRedisIdempotencyStore(fake)
	ctx := context.Background()
	id := uuid.New()

	ok, err := store.AcquireLock(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.AcquireLock(ctx, id)
	require.NoError(t, err)
	require.False(t, ok, "second acquire must report a duplicate")

	ok, err = store.AcquireLock(ctx, uuid.New())
	require.NoError(t, err)
	require.True(t, ok, "locks are per job")

	require.Equal(t, lockTTL, fake.keys["vehicle-counter:lock:"+id.String()])
}

func TestReleaseLock_KeepsDedupWindow(t *testing.T) {
	fake := newFake()
	store := NewRedisIdempotencyStore(fake)
	ctx := context.Background()
	id := uuid.New()

	_, err := store.AcquireLock(ctx, id)
	require.NoError(t, err)
	require.NoError(t, store.ReleaseLock(ctx, id))

	ok, err := store.AcquireLock(ctx, id)
	require.NoError(t, err)
	require.False(t, ok, "redelivery after release stays deduplicated")
}

func TestLock_RedisErrors(t *testing.T) {
	fake := newFake()
	fake.failErr = errors.New("connection refused")
	store := NewRedisIdempotencyStore(fake)

	ok, err := store.AcquireLock(context.Background(), uuid.New())
	require.Error(t, err)
	require.False(t, ok)
	require.ErrorContains(t, store.ReleaseLock(context.Background(), uuid.New()), "connection refused")
}
