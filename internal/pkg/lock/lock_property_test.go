package lock

import (
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

// Concurrent updates under the same key must match sequential execution.
func TestConcurrentUpdateSafetyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(1000, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")

		amounts := make([]int64, numOps)
		expected := initial
		for i := 0; i < numOps; i++ {
			amounts[i] = rapid.Int64Range(-500, 500).Draw(t, "amount")
			expected += amounts[i]
		}

		key := rapid.Int64Range(1, 1000000).Draw(t, "key")
		kl := NewKeyedLock()
		value := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, amount := range amounts {
			go func(delta int64) {
				defer wg.Done()
				kl.Lock(key)
				defer kl.Unlock(key)
				value += delta
			}(amount)
		}
		wg.Wait()

		if value != expected {
			t.Fatalf("value mismatch with locking: expected %d, got %d (initial=%d, numOps=%d)",
				expected, value, initial, numOps)
		}
	})
}

// WithLock serializes its callbacks per key.
func TestWithLockFunctionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(1000, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(5, 30).Draw(t, "numOps")
		perOp := rapid.Int64Range(1, 100).Draw(t, "perOp")
		expected := initial + int64(numOps)*perOp

		key := rapid.Int64Range(1, 1000000).Draw(t, "key")
		kl := NewKeyedLock()
		value := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = kl.WithLock(key, func() error {
					value += perOp
					return nil
				})
			}()
		}
		wg.Wait()

		if value != expected {
			t.Fatalf("value mismatch with WithLock: expected %d, got %d", expected, value)
		}
	})
}

// Locks for different keys are independent.
func TestIndependentKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numKeys := rapid.IntRange(2, 10).Draw(t, "numKeys")
		opsPerKey := rapid.IntRange(5, 20).Draw(t, "opsPerKey")

		kl := NewKeyedLock()
		values := make(map[int64]*int64, numKeys)
		for i := 1; i <= numKeys; i++ {
			v := int64(0)
			values[int64(i)] = &v
		}

		var wg sync.WaitGroup
		wg.Add(numKeys * opsPerKey)
		for key := int64(1); key <= int64(numKeys); key++ {
			for j := 0; j < opsPerKey; j++ {
				go func(k int64) {
					defer wg.Done()
					kl.Lock(k)
					defer kl.Unlock(k)
					*values[k] += 10
				}(key)
			}
		}
		wg.Wait()

		for key := int64(1); key <= int64(numKeys); key++ {
			if got, want := *values[key], int64(opsPerKey)*10; got != want {
				t.Fatalf("key %d value mismatch: expected %d, got %d", key, want, got)
			}
		}
	})
}

// TryLock never deadlocks and leaves the lock available afterwards.
func TestTryLockProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.Int64Range(1, 1000000).Draw(t, "key")
		numAttempts := rapid.IntRange(5, 20).Draw(t, "numAttempts")

		kl := NewKeyedLock()

		var successCount atomic.Int32
		var wg sync.WaitGroup
		wg.Add(numAttempts)
		startCh := make(chan struct{})

		for i := 0; i < numAttempts; i++ {
			go func() {
				defer wg.Done()
				<-startCh
				if kl.TryLock(key) {
					successCount.Add(1)
					kl.Unlock(key)
				}
			}()
		}

		close(startCh)
		wg.Wait()

		if successCount.Load() < 1 {
			t.Fatalf("at least one TryLock should succeed, got %d successes", successCount.Load())
		}
		if !kl.TryLock(key) {
			t.Fatal("lock should be available after all attempts complete")
		}
		kl.Unlock(key)
	})
}

// Every Lock paired with an Unlock leaves the lock available.
func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.Int64Range(1, 1000000).Draw(t, "key")
		numCycles := rapid.IntRange(1, 50).Draw(t, "numCycles")

		kl := NewKeyedLock()
		for i := 0; i < numCycles; i++ {
			kl.Lock(key)
			kl.Unlock(key)
		}

		if !kl.TryLock(key) {
			t.Fatal("lock should be available after symmetric lock/unlock cycles")
		}
		kl.Unlock(key)
	})
}
