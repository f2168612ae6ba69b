package uow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
)

func TestResourceCache_GetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("Same key returns the identical handle", func(t *testing.T) {
		cache := NewResourceCache()
		key := NewResourceKey("orders", "postgres://db")

		created := 0
		factory := func(_ context.Context) (Resource, error) {
			created++
			return &fakeResource{}, nil
		}

		first, err := cache.GetOrCreate(ctx, key, factory)
		require.NoError(t, err)
		second, err := cache.GetOrCreate(ctx, key, factory)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, created)
	})

	t.Run("Factory error is not cached", func(t *testing.T) {
		cache := NewResourceCache()
		key := NewResourceKey("orders", "postgres://db")
		boom := errors.New("dial failed")

		_, err := cache.GetOrCreate(ctx, key, func(_ context.Context) (Resource, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		res, err := cache.GetOrCreate(ctx, key, func(_ context.Context) (Resource, error) {
			return &fakeResource{}, nil
		})
		require.NoError(t, err)
		assert.NotNil(t, res)
	})

	t.Run("Racing creators produce exactly one handle", func(t *testing.T) {
		cache := NewResourceCache()
		key := NewResourceKey("orders", "postgres://db")

		var created atomic.Int32
		var wg sync.WaitGroup
		results := make([]Resource, 16)

		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := cache.GetOrCreate(ctx, key, func(_ context.Context) (Resource, error) {
					created.Add(1)
					return &fakeResource{}, nil
				})
				require.NoError(t, err)
				results[i] = res
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), created.Load())
		for _, res := range results {
			assert.Same(t, results[0], res)
		}
	})
}

func TestResourceCache_FindAndAdd(t *testing.T) {
	key := NewResourceKey("orders", "postgres://db")

	t.Run("Find does not create", func(t *testing.T) {
		cache := NewResourceCache()
		_, ok := cache.Find(key)
		assert.False(t, ok)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("Add then Find", func(t *testing.T) {
		cache := NewResourceCache()
		res := &fakeResource{}
		require.NoError(t, cache.Add(key, res))

		found, ok := cache.Find(key)
		require.True(t, ok)
		assert.Same(t, res, found)
	})

	t.Run("Duplicate Add signals a coordination bug", func(t *testing.T) {
		cache := NewResourceCache()
		require.NoError(t, cache.Add(key, &fakeResource{}))

		err := cache.Add(key, &fakeResource{})
		assert.ErrorIs(t, err, errs.ErrDuplicateRegistration)
	})
}

func TestResourceCache_ReleaseAll(t *testing.T) {
	ctx := context.Background()
	cache := NewResourceCache()

	first := &fakeResource{}
	second := &fakeResource{}
	require.NoError(t, cache.Add(NewResourceKey("orders", "a"), first))
	require.NoError(t, cache.Add(NewResourceKey("audit", "b"), second))

	cache.ReleaseAll(ctx)
	assert.Equal(t, 1, first.released)
	assert.Equal(t, 1, second.released)
	assert.Equal(t, 0, cache.Len())

	// releasing an emptied cache is harmless
	cache.ReleaseAll(ctx)
	assert.Equal(t, 1, first.released)
}
