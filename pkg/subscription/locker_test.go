package subscription_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/subscription"
)

func TestKeyedMutex(t *testing.T) {
	t.Parallel()

	t.Run("serializes the same key", func(t *testing.T) {
		t.Parallel()

		locker := subscription.NewKeyedMutex()
		var inside, maxInside atomic.Int32
		var wg sync.WaitGroup

		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(context.Background(), "sub_1")
				require.NoError(t, err)
				defer unlock()

				n := inside.Add(1)
				for {
					cur := maxInside.Load()
					if n <= cur || maxInside.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxInside.Load())
	})

	t.Run("different keys do not block", func(t *testing.T) {
		t.Parallel()

		locker := subscription.NewKeyedMutex()
		unlockA, err := locker.Lock(context.Background(), "sub_a")
		require.NoError(t, err)
		defer unlockA()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		unlockB, err := locker.Lock(ctx, "sub_b")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("honors context while waiting", func(t *testing.T) {
		t.Parallel()

		locker := subscription.NewKeyedMutex()
		unlock, err := locker.Lock(context.Background(), "sub_1")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, "sub_1")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		unlock()
		unlock() // second call is a no-op

		relock, err := locker.Lock(context.Background(), "sub_1")
		require.NoError(t, err)
		relock()
	})
}
