package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLockTryLockExcludesSameKey(t *testing.T) {
	var kl KeyedLock
	assert.True(t, kl.TryLock("a"))
	assert.False(t, kl.TryLock("a"), "second TryLock on a held key must fail, not block")

	kl.Unlock("a")
	assert.True(t, kl.TryLock("a"), "lock must be re-acquirable after Unlock")
}

func TestKeyedLockDifferentKeysAreIndependent(t *testing.T) {
	var kl KeyedLock
	assert.True(t, kl.TryLock("a"))
	assert.True(t, kl.TryLock("b"), "distinct keys must not contend")
}

func TestKeyedLockConcurrentTryLockOnlyOneWinnerPerKey(t *testing.T) {
	var kl KeyedLock
	const n = 50
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if kl.TryLock("shared") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
}
