package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRegistry(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb, err := DialRedis(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, "MyBot", time.Hour, nil), mr
}

func implementations(t *testing.T) map[string]Registry {
	r, _ := newRedisRegistry(t)
	return map[string]Registry{"memory": NewMemory(), "redis": r}
}

func TestAcquireReleaseSequence(t *testing.T) {
	ctx := context.Background()
	for name, reg := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			assert.False(t, reg.IsOccupied(ctx))
			require.True(t, reg.TryAcquire(ctx, "g1"))
			assert.True(t, reg.IsOccupied(ctx))
			assert.Equal(t, "g1", reg.Current(ctx))

			assert.False(t, reg.TryAcquire(ctx, "g2"), "second acquire while occupied must fail")
			assert.Equal(t, "g1", reg.Current(ctx))

			reg.Release(ctx, "g2")
			assert.Equal(t, "g1", reg.Current(ctx), "stale release must not clear a different holder")

			reg.Release(ctx, "g1")
			assert.False(t, reg.IsOccupied(ctx))
			assert.Equal(t, "", reg.Current(ctx))

			require.True(t, reg.TryAcquire(ctx, "g2"))
			reg.Release(ctx, "g2")
			reg.Release(ctx, "g2")
			assert.False(t, reg.IsOccupied(ctx))
		})
	}
}

func TestEmptyIDNeverAcquires(t *testing.T) {
	ctx := context.Background()
	for name, reg := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			assert.False(t, reg.TryAcquire(ctx, ""))
			assert.False(t, reg.IsOccupied(ctx))
		})
	}
}

func TestConcurrentAcquireAdmitsOne(t *testing.T) {
	ctx := context.Background()
	for name, reg := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			var (
				wg      sync.WaitGroup
				winners atomic.Int32
			)
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if reg.TryAcquire(ctx, fmt.Sprintf("g%d", i)) {
						winners.Add(1)
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, int32(1), winners.Load())
		})
	}
}

func TestMemoryHoldsAtMostOneUnderChurn(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory()
	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("g%d", i)
			for j := 0; j < 200; j++ {
				if reg.TryAcquire(ctx, id) {
					n := holders.Add(1)
					if n > maxSeen.Load() {
						maxSeen.Store(n)
					}
					holders.Add(-1)
					reg.Release(ctx, id)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
	assert.False(t, reg.IsOccupied(ctx))
}

func TestRedisSlotExpires(t *testing.T) {
	reg, mr := newRedisRegistry(t)
	ctx := context.Background()
	require.True(t, reg.TryAcquire(ctx, "g1"))
	mr.FastForward(2 * time.Hour)
	assert.False(t, reg.IsOccupied(ctx))
	assert.True(t, reg.TryAcquire(ctx, "g2"))
}

func TestRedisFailsSafe(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	reg := NewRedis(rdb, "MyBot", time.Minute, nil)
	ctx := context.Background()
	assert.False(t, reg.TryAcquire(ctx, "g1"))
	assert.True(t, reg.IsOccupied(ctx))
	reg.Release(ctx, "g1")
}
