package lock

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestKeyLockSerializesProperty checks that read-modify-write under one key
// matches sequential execution.
func TestKeyLockSerializesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(1000, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")
		key := rapid.Int64Range(1, 1000000).Draw(t, "key")

		amounts := make([]int64, numOps)
		expected := initial
		for i := range amounts {
			amounts[i] = rapid.Int64Range(-500, 500).Draw(t, "amount")
			expected += amounts[i]
		}

		kl := NewKeyLock()
		balance := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, amount := range amounts {
			go func(amount int64) {
				defer wg.Done()
				_ = kl.WithLock(key, func() error {
					balance += amount
					return nil
				})
			}(amount)
		}
		wg.Wait()

		if balance != expected {
			t.Fatalf("balance mismatch: expected %d, got %d", expected, balance)
		}
		if kl.Len() != 0 {
			t.Fatalf("keys leaked: %d", kl.Len())
		}
	})
}

// TestTryLockSingleWinnerProperty checks that concurrent presses on the same
// receipt admit exactly one handler.
func TestTryLockSingleWinnerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		presses := rapid.IntRange(2, 30).Draw(t, "presses")
		key := rapid.Int64Range(1, 1000).Draw(t, "key")

		kl := NewKeyLock()
		kl.Lock(key)

		var admitted int32
		var wg sync.WaitGroup
		wg.Add(presses)
		for i := 0; i < presses; i++ {
			go func() {
				defer wg.Done()
				if kl.TryLock(key) {
					atomic.AddInt32(&admitted, 1)
					kl.Unlock(key)
				}
			}()
		}
		wg.Wait()

		if admitted != 0 {
			t.Fatalf("%d presses got through a held lock", admitted)
		}
		kl.Unlock(key)
		if !kl.TryLock(key) {
			t.Fatalf("free key could not be taken")
		}
		kl.Unlock(key)
	})
}

func TestKeyLock_IndependentKeys(t *testing.T) {
	kl := NewKeyLock()

	kl.Lock(1)
	assert.True(t, kl.TryLock(2))
	assert.False(t, kl.TryLock(1))
	assert.Equal(t, 2, kl.Len())

	kl.Unlock(2)
	kl.Unlock(1)
	assert.Equal(t, 0, kl.Len())
}

func TestKeyLock_UnlockUnheldPanics(t *testing.T) {
	assert.Panics(t, func() { NewKeyLock().Unlock(7) })
}
