package uow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
)

func TestCurrentAndRequire(t *testing.T) {
	ctx := context.Background()

	t.Run("No ambient scope", func(t *testing.T) {
		_, ok := Current(ctx)
		assert.False(t, ok)

		_, err := Require(ctx)
		assert.ErrorIs(t, err, errs.ErrNoActiveScope)
	})

	t.Run("Begin makes the scope ambient", func(t *testing.T) {
		scopeCtx, scope := Begin(ctx)
		defer scope.Close(ctx)

		current, ok := Current(scopeCtx)
		require.True(t, ok)
		assert.Same(t, scope, current)

		required, err := Require(scopeCtx)
		require.NoError(t, err)
		assert.Same(t, scope, required)
	})

	t.Run("Nested Begin reports the innermost scope", func(t *testing.T) {
		rootCtx, root := Begin(ctx)
		defer root.Close(ctx)
		childCtx, child := Begin(rootCtx)
		defer child.Close(ctx)

		current, ok := Current(childCtx)
		require.True(t, ok)
		assert.Same(t, child, current)
		assert.Same(t, root, child.Parent())
	})
}

func TestBegin_Timeout(t *testing.T) {
	scopeCtx, scope := Begin(context.Background(), WithTimeout(20*time.Millisecond))
	defer scope.Close(context.Background())

	deadline, ok := scopeCtx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(20*time.Millisecond), deadline, 10*time.Millisecond)

	select {
	case <-scopeCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("scope context did not expire")
	}
}

func TestWithDefaultCancellation(t *testing.T) {
	t.Run("Contexts with a signal pass through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		assert.Equal(t, ctx, WithDefaultCancellation(ctx))
	})

	t.Run("Signal-less contexts inherit the ambient default", func(t *testing.T) {
		defaultCtx, cancel := context.WithCancel(context.Background())
		SetDefaultContext(defaultCtx)
		defer SetDefaultContext(context.Background())

		scopeCtx, scope := Begin(context.Background())
		defer scope.Close(context.Background())

		merged := WithDefaultCancellation(scopeCtx)
		require.NotNil(t, merged.Done())

		// scope identity survives the graft
		current, ok := Current(merged)
		require.True(t, ok)
		assert.Same(t, scope, current)

		cancel()
		select {
		case <-merged.Done():
		case <-time.After(time.Second):
			t.Fatal("merged context did not observe the default cancellation")
		}
	})

	t.Run("Background default leaves the context untouched", func(t *testing.T) {
		ctx := context.Background()
		assert.Equal(t, ctx, WithDefaultCancellation(ctx))
	})
}
