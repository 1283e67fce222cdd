package gate

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKeyStable(t *testing.T) {
	a := LockKey("repo:x", "db")
	assert.Equal(t, a, LockKey("repo:x", "db"))
	assert.NotEqual(t, a, LockKey("repo:x/", "db"))
	assert.NotEqual(t, LockKey("a", "b\x00c"), LockKey("a\x00b", "c"))
	assert.Len(t, a, len("continuum:binding:")+64)
}

func TestLockKeySeparatorInsideParts(t *testing.T) {
	pairs := [][2]string{
		{"a", "b\x00c"},
		{"a\x00b", "c"},
		{"1:a", "b"},
		{"1", ":ab"},
		{"", "ab"},
		{"ab", ""},
	}
	seen := map[string][2]string{}
	for _, p := range pairs {
		key := LockKey(p[0], p[1])
		prev, dup := seen[key]
		require.False(t, dup, "%q and %q share a lock key", prev, p)
		seen[key] = p
	}

	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), LockKey("a", "b\x00c"))
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	other, err := k.Lock(ctx, LockKey("a\x00b", "c"))
	require.NoError(t, err, "distinct binding must not wait on the held lock")
	other()
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "key")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutexIndependentKeysAndCancel(t *testing.T) {
	k := NewKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	unlockB, err := k.Lock(context.Background(), "b")
	require.NoError(t, err)
	unlockB()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlockA()
	unlockA()
	assert.Equal(t, 0, k.size())
}

// Requires a reachable Redis; set CONTINUUM_TEST_REDIS_ADDR to run.
func TestRedisLocker_Integration(t *testing.T) {
	addr := os.Getenv("CONTINUUM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONTINUUM_TEST_REDIS_ADDR not set")
	}
	locker := NewRedisLocker(addr, "", 0, time.Second)
	defer locker.Close()
	ctx := context.Background()
	if err := locker.Ping(ctx); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	key := LockKey("test-scope", t.Name())
	unlock, err := locker.Lock(ctx, key)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := locker.Lock(ctx, key)
	require.NoError(t, err)
	unlock2()
}
