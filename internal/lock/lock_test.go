package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, l Locker) {
	t.Helper()
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "a.pdf")
			if !assert.NoError(t, err) {
				return
			}
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestKeyedMutex_Exclusive(t *testing.T) {
	m := NewKeyedMutex()
	exercise(t, m)
	assert.Zero(t, m.size())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	releaseA, err := m.Acquire(context.Background(), "a.pdf")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := m.Acquire(ctx, "b.pdf")
	require.NoError(t, err)
	releaseB()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	m := NewKeyedMutex()
	release, err := m.Acquire(context.Background(), "a.pdf")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "a.pdf")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Zero(t, m.size())
}

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "test:lock:", time.Minute, nil), mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	l, mr := newRedisLocker(t)
	exercise(t, l)
	assert.False(t, mr.Exists("test:lock:a.pdf"))
}

func TestRedisLocker_WaitsForHolder(t *testing.T) {
	l, mr := newRedisLocker(t)
	release, err := l.Acquire(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:a.pdf"))
	assert.Greater(t, mr.TTL("test:lock:a.pdf"), time.Duration(0))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "a.pdf")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.False(t, mr.Exists("test:lock:a.pdf"))

	again, err := l.Acquire(context.Background(), "a.pdf")
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	l, mr := newRedisLocker(t)
	release, err := l.Acquire(context.Background(), "a.pdf")
	require.NoError(t, err)

	// the lock expired and another process took it
	require.NoError(t, mr.Set("test:lock:a.pdf", "someone-else"))
	release()

	got, err := mr.Get("test:lock:a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
