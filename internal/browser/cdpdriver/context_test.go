// internal/browser/cdpdriver/context_test.go
package cdpdriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("inherits values from the tab context", func(t *testing.T) {
		tab := context.WithValue(context.Background(), key, "tab-1")
		combined, cancel := CombineContext(tab, context.Background())
		defer cancel()

		assert.Equal(t, "tab-1", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("cancelled by the tab", func(t *testing.T) {
		tab, cancelTab := context.WithCancel(context.Background())
		combined, cancel := CombineContext(tab, context.Background())
		defer cancel()

		cancelTab()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("cancelled by the operation", func(t *testing.T) {
		op, cancelOp := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), op)
		defer cancel()

		cancelOp()
		assert.Eventually(t, func() bool { return combined.Err() != nil },
			time.Second, 5*time.Millisecond)
	})

	t.Run("adopts the operation deadline", func(t *testing.T) {
		deadline := time.Now().Add(50 * time.Millisecond)
		op, cancelOp := context.WithDeadline(context.Background(), deadline)
		defer cancelOp()

		combined, cancel := CombineContext(context.Background(), op)
		defer cancel()

		got, ok := combined.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, deadline, got, time.Millisecond)

		<-combined.Done()
		assert.Error(t, combined.Err())
	})

	t.Run("explicit cancel", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}
