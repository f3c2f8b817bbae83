package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func (kl *KeyLock) size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}

// Concurrent read-modify-write updates under the same key must match sequential execution.
func TestKeyLock_SerializesSameKeyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Float64Range(1, 100).Draw(t, "initial")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")
		key := rapid.Int64Range(1, 1000000).Draw(t, "gameID")

		deltas := make([]int64, numOps)
		expected := int64(initial * 100)
		for i := range deltas {
			deltas[i] = rapid.Int64Range(-500, 500).Draw(t, "delta")
			expected += deltas[i]
		}

		kl := NewKeyLock()
		cents := int64(initial * 100)

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, d := range deltas {
			go func(d int64) {
				defer wg.Done()
				_ = kl.WithLockContext(context.Background(), key, 0, func() error {
					cents += d
					return nil
				})
			}(d)
		}
		wg.Wait()

		if cents != expected {
			t.Fatalf("expected %d, got %d", expected, cents)
		}
		if kl.size() != 0 {
			t.Fatalf("expected lock table to be empty, has %d keys", kl.size())
		}
	})
}

// Distinct keys never block each other.
func TestKeyLock_IndependentKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfNDistinct(rapid.Int64Range(1, 10000), 2, 10, rapid.ID[int64]).Draw(t, "keys")

		kl := NewKeyLock()
		for _, k := range keys {
			if err := kl.lockContext(context.Background(), k, 50*time.Millisecond); err != nil {
				t.Fatalf("key %d should be free: %v", k, err)
			}
		}
		if kl.size() != len(keys) {
			t.Fatalf("expected %d held keys, got %d", len(keys), kl.size())
		}
		for _, k := range keys {
			kl.unlock(k)
		}
		if kl.size() != 0 {
			t.Fatalf("expected lock table to be empty, has %d keys", kl.size())
		}
	})
}

func TestKeyLock_WithLockContextTimeout(t *testing.T) {
	kl := NewKeyLock()
	require.NoError(t, kl.lockContext(context.Background(), 1, 0))

	called := false
	err := kl.WithLockContext(context.Background(), 1, 20*time.Millisecond, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)

	kl.unlock(1)
	require.Eventually(t, func() bool { return kl.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestKeyLock_WithLockContextCancelled(t *testing.T) {
	kl := NewKeyLock()
	require.NoError(t, kl.lockContext(context.Background(), 1, 0))
	defer kl.unlock(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := kl.WithLockContext(ctx, 1, 0, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestKeyLock_WithLockContextReturnsFnError(t *testing.T) {
	kl := NewKeyLock()
	boom := assert.AnError

	err := kl.WithLockContext(context.Background(), 3, 0, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, kl.size())
}

func TestKeyLock_UnlockUnknownKey(t *testing.T) {
	kl := NewKeyLock()
	assert.NotPanics(t, func() { kl.unlock(42) })
}
