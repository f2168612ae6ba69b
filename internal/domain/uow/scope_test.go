package uow

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
)

// registerToken starts a fake native transaction in the scope the way a
// provider would: token registered only after the start succeeded.
func registerToken(t *testing.T, scope *Scope, key string, native *fakeTx) *Token {
	t.Helper()
	tok := NewToken(TransactionKey(key), native, sql.LevelDefault, time.Now())
	require.NoError(t, scope.AddToken(TransactionKey(key), tok))
	return tok
}

func TestScope_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Fresh scope is active and transactional by default", func(t *testing.T) {
		_, scope := Begin(ctx)
		defer scope.Close(ctx)

		assert.Equal(t, StateActive, scope.State())
		assert.True(t, scope.Transactional())
		assert.NotEmpty(t, scope.ID())
		assert.Nil(t, scope.Parent())
	})

	t.Run("Complete with no transactions still completes", func(t *testing.T) {
		_, scope := Begin(ctx)
		require.NoError(t, scope.Complete(ctx))
		assert.Equal(t, StateCompleted, scope.State())
		require.NoError(t, scope.Close(ctx))
	})

	t.Run("Complete twice is rejected", func(t *testing.T) {
		_, scope := Begin(ctx)
		require.NoError(t, scope.Complete(ctx))
		assert.ErrorIs(t, scope.Complete(ctx), errs.ErrScopeCompleted)
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		_, scope := Begin(ctx)
		require.NoError(t, scope.Close(ctx))
		require.NoError(t, scope.Close(ctx))
	})

	t.Run("Failed scope rejects new resources", func(t *testing.T) {
		_, scope := Begin(ctx)
		defer scope.Close(ctx)
		scope.Fail()

		_, err := scope.GetOrCreateResource(ctx, NewResourceKey("orders", "db"), func(_ context.Context) (Resource, error) {
			return &fakeResource{}, nil
		})
		assert.ErrorIs(t, err, errs.ErrScopeCompleted)
	})
}

func TestScope_CommitAllOnComplete(t *testing.T) {
	ctx := context.Background()

	_, scope := Begin(ctx)
	first := &fakeTx{}
	second := &fakeTx{}
	registerToken(t, scope, "relational://orders", first)
	registerToken(t, scope, "document://audit", second)

	require.NoError(t, scope.Complete(ctx))
	require.NoError(t, scope.Close(ctx))

	commits, rollbacks := first.counts()
	assert.Equal(t, 1, commits)
	assert.Equal(t, 0, rollbacks)
	commits, rollbacks = second.counts()
	assert.Equal(t, 1, commits)
	assert.Equal(t, 0, rollbacks)
	assert.Equal(t, StateCompleted, scope.State())
}

func TestScope_CommitFailureRollsBackRemaining(t *testing.T) {
	ctx := context.Background()

	_, scope := Begin(ctx)
	committed := &fakeTx{}
	failing := &fakeTx{commitErr: errors.New("connection reset")}
	pending := &fakeTx{}
	registerToken(t, scope, "relational://a", committed)
	registerToken(t, scope, "relational://b", failing)
	registerToken(t, scope, "document://c", pending)

	err := scope.Complete(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrCommitFailed)

	var commitErr *errs.CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, "relational://b", commitErr.Key)
	assert.ElementsMatch(t, []string{"relational://b", "document://c"}, commitErr.RolledBack)

	// the already-committed sibling is not retroactively rolled back
	commits, rollbacks := committed.counts()
	assert.Equal(t, 1, commits)
	assert.Equal(t, 0, rollbacks)

	_, rollbacks = failing.counts()
	assert.Equal(t, 1, rollbacks)
	commits, rollbacks = pending.counts()
	assert.Equal(t, 0, commits)
	assert.Equal(t, 1, rollbacks)

	assert.Equal(t, StateFailed, scope.State())
	require.NoError(t, scope.Close(ctx))
}

func TestScope_AbandonedScopeRollsBackAll(t *testing.T) {
	ctx := context.Background()

	_, scope := Begin(ctx)
	first := &fakeTx{}
	second := &fakeTx{}
	registerToken(t, scope, "relational://a", first)
	registerToken(t, scope, "document://b", second)

	res := &fakeResource{}
	require.NoError(t, scope.AddResource(NewResourceKey("orders", "a"), res))

	// scope exits without Complete: error path
	require.NoError(t, scope.Close(ctx))

	_, rollbacks := first.counts()
	assert.Equal(t, 1, rollbacks)
	_, rollbacks = second.counts()
	assert.Equal(t, 1, rollbacks)
	assert.Equal(t, StateFailed, scope.State())

	// handles are released unconditionally
	assert.Equal(t, 1, res.released)
}

func TestScope_ReleaseIsUnconditional(t *testing.T) {
	ctx := context.Background()

	_, scope := Begin(ctx)
	res := &fakeResource{}
	require.NoError(t, scope.AddResource(NewResourceKey("orders", "a"), res))

	require.NoError(t, scope.Complete(ctx))
	require.NoError(t, scope.Close(ctx))
	assert.Equal(t, 1, res.released)
}

func TestScope_NonTransactional(t *testing.T) {
	ctx := context.Background()

	_, scope := Begin(ctx, NonTransactional())
	defer scope.Close(ctx)

	assert.False(t, scope.Transactional())

	// providers must never create a token for a non-transactional scope;
	// attempting to is flagged as a coordination bug
	tok := NewToken(TransactionKey("relational://a"), &fakeTx{}, sql.LevelDefault, time.Now())
	err := scope.AddToken(TransactionKey("relational://a"), tok)
	assert.ErrorIs(t, err, errs.ErrNonTransactionalScope)
	assert.NotErrorIs(t, err, errs.ErrDuplicateRegistration)
	assert.Equal(t, 0, scope.registry.Len())
}

func TestScope_NestedScopes(t *testing.T) {
	ctx := context.Background()

	t.Run("Child sees the ancestor's token and must attach", func(t *testing.T) {
		rootCtx, root := Begin(ctx)
		defer root.Close(ctx)

		native := &fakeTx{}
		tok := registerToken(t, root, "relational://orders", native)

		childCtx, child := Begin(rootCtx)
		defer child.Close(ctx)

		found, ok := child.FindToken(TransactionKey("relational://orders"))
		require.True(t, ok)
		assert.Same(t, tok, found)

		// a competing registration for an ancestor-held key is rejected
		err := child.AddToken(TransactionKey("relational://orders"),
			NewToken(TransactionKey("relational://orders"), &fakeTx{}, sql.LevelDefault, time.Now()))
		assert.ErrorIs(t, err, errs.ErrDuplicateRegistration)

		// attaching instead participates in the ancestor's transaction
		found.Attach()

		// child completion is a no-op for tokens it does not own
		inner, ok := Current(childCtx)
		require.True(t, ok)
		require.NoError(t, inner.Complete(ctx))
		commits, _ := native.counts()
		assert.Equal(t, 0, commits)

		// the owner decides the outcome
		require.NoError(t, root.Complete(ctx))
		commits, _ = native.counts()
		assert.Equal(t, 1, commits)
	})

	t.Run("Child reads resources through the parent", func(t *testing.T) {
		rootCtx, root := Begin(ctx)
		defer root.Close(ctx)

		res := &fakeResource{}
		key := NewResourceKey("audit", "mongodb://db")
		require.NoError(t, root.AddResource(key, res))

		_, child := Begin(rootCtx)
		defer child.Close(ctx)

		found, ok := child.FindResource(key)
		require.True(t, ok)
		assert.Same(t, res, found)

		// writes land in the creating scope only
		_, ok = child.cache.Find(key)
		assert.False(t, ok)
	})

	t.Run("Child inherits isolation from the parent", func(t *testing.T) {
		rootCtx, root := Begin(ctx, WithIsolation(sql.LevelSerializable))
		defer root.Close(ctx)

		_, child := Begin(rootCtx)
		defer child.Close(ctx)

		level, ok := child.Isolation()
		require.True(t, ok)
		assert.Equal(t, sql.LevelSerializable, level)
	})
}

func TestScope_ConcurrentTokenCreation(t *testing.T) {
	// N providers race on the same transaction key: exactly one create
	// branch may win, the rest must attach
	ctx := context.Background()
	_, scope := Begin(ctx)
	defer scope.Close(ctx)

	key := TransactionKey("relational://orders")
	var wg sync.WaitGroup
	created := make(chan *Token, 32)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok, ok := scope.FindToken(key); ok {
				tok.Attach()
				return
			}
			tok := NewToken(key, &fakeTx{}, sql.LevelDefault, time.Now())
			if err := scope.AddToken(key, tok); err != nil {
				// lost the race past the check: attach to the winner
				winner, ok := scope.FindToken(key)
				require.True(t, ok)
				winner.Attach()
				return
			}
			tok.Attach()
			created <- tok
		}()
	}
	wg.Wait()
	close(created)

	winners := 0
	for range created {
		winners++
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, scope.registry.Len())

	tok, ok := scope.FindToken(key)
	require.True(t, ok)
	assert.Equal(t, 32, tok.Participants())
}

func TestScope_MarkInitialized(t *testing.T) {
	ctx := context.Background()
	_, scope := Begin(ctx)
	defer scope.Close(ctx)

	key := NewResourceKey("orders", "postgres://db")
	assert.True(t, scope.MarkInitialized(key))
	assert.False(t, scope.MarkInitialized(key))
}
