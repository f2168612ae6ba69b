package documentdb

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerr "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/storage"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/uow"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/logger"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/resolver"
	timeadapter "github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/time"
)

type fakeSession struct {
	mu         sync.Mutex
	started    int
	committed  int
	aborted    int
	ended      int
	startTxErr error
	commitErr  error
}

func (s *fakeSession) StartTransaction(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTxErr != nil {
		return s.startTxErr
	}
	s.started++
	return nil
}

func (s *fakeSession) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	s.committed++
	return nil
}

func (s *fakeSession) Rollback(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted++
	return nil
}

func (s *fakeSession) End(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended++
}

func (s *fakeSession) Context(ctx context.Context) context.Context { return ctx }

type fakeClient struct {
	mu           sync.Mutex
	sessions     []*fakeSession
	startSessErr error
	startTxErr   error
}

func (c *fakeClient) StartSession(context.Context) (storage.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startSessErr != nil {
		return nil, c.startSessErr
	}
	sess := &fakeSession{startTxErr: c.startTxErr}
	c.sessions = append(c.sessions, sess)
	return sess, nil
}

func newTestProvider(client *fakeClient, identities ...string) (*Provider, *int) {
	dials := 0
	dial := func(ctx context.Context, target string) (storage.Client, error) {
		dials++
		return client, nil
	}

	targets := make(map[string]string, len(identities))
	for _, identity := range identities {
		targets[identity] = "mongodb://db-b:27017"
	}

	p := NewProvider(dial, resolver.NewStatic(targets),
		logger.NewNoopLogger(), timeadapter.NewRealTimeProvider(), "coordination")
	return p, &dials
}

func TestProvider_AcquireWithoutScope(t *testing.T) {
	p, _ := newTestProvider(&fakeClient{}, "audit")

	_, err := p.Acquire(context.Background(), "audit")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerr.ErrNoActiveScope)
}

func TestProvider_TransactionalAcquireStartsSessionAndTransaction(t *testing.T) {
	client := &fakeClient{}
	p, dials := newTestProvider(client, "audit")

	ctx, scope := uow.Begin(context.Background())
	defer func() { _ = scope.Close(ctx) }()

	h, err := p.Acquire(ctx, "audit")
	require.NoError(t, err)
	require.NotNil(t, h.Token())
	assert.True(t, h.Transactional())
	assert.Equal(t, "coordination", h.Database())

	require.Len(t, client.sessions, 1)
	assert.Equal(t, 1, client.sessions[0].started)
	assert.Equal(t, 1, *dials)
}

func TestProvider_SameTargetSharesSession(t *testing.T) {
	client := &fakeClient{}
	p, dials := newTestProvider(client, "audit", "metrics")

	ctx, scope := uow.Begin(context.Background())
	defer func() { _ = scope.Close(ctx) }()

	h1, err := p.Acquire(ctx, "audit")
	require.NoError(t, err)
	h2, err := p.Acquire(ctx, "metrics")
	require.NoError(t, err)

	// Both identities resolve to one target: one session, one transaction.
	assert.NotSame(t, h1, h2)
	assert.Same(t, h1.Session(), h2.Session())
	assert.Same(t, h1.Token(), h2.Token())
	assert.Equal(t, 2, h1.Token().Participants())

	require.Len(t, client.sessions, 1)
	assert.Equal(t, 1, client.sessions[0].started)
	assert.Equal(t, 1, *dials)
}

func TestProvider_NonTransactionalScope(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestProvider(client, "audit")

	ctx, scope := uow.Begin(context.Background(), uow.NonTransactional())

	h, err := p.Acquire(ctx, "audit")
	require.NoError(t, err)
	assert.Nil(t, h.Token())
	assert.False(t, h.Transactional())

	require.Len(t, client.sessions, 1)
	assert.Equal(t, 0, client.sessions[0].started)

	require.NoError(t, scope.Close(ctx))
	assert.Equal(t, 1, client.sessions[0].ended)
}

func TestProvider_NonTransactionalScopeSharesSessionPerTarget(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestProvider(client, "audit", "metrics")

	ctx, scope := uow.Begin(context.Background(), uow.NonTransactional())

	h1, err := p.Acquire(ctx, "audit")
	require.NoError(t, err)
	h2, err := p.Acquire(ctx, "metrics")
	require.NoError(t, err)

	// Both identities resolve to one target: one session even without a
	// transaction, ended once by the handle that started it.
	assert.NotSame(t, h1, h2)
	assert.Same(t, h1.Session(), h2.Session())
	require.Len(t, client.sessions, 1)

	require.NoError(t, scope.Close(ctx))
	assert.Equal(t, 1, client.sessions[0].ended)

	// A fresh scope starts its own session rather than reviving the old one.
	ctx2, scope2 := uow.Begin(context.Background(), uow.NonTransactional())
	defer func() { _ = scope2.Close(ctx2) }()

	_, err = p.Acquire(ctx2, "audit")
	require.NoError(t, err)
	require.Len(t, client.sessions, 2)
}

func TestProvider_StartTransactionFailure(t *testing.T) {
	client := &fakeClient{startTxErr: errors.New("transaction numbers are only allowed on a replica set")}
	p, _ := newTestProvider(client, "audit")

	ctx, scope := uow.Begin(context.Background())
	defer func() { _ = scope.Close(ctx) }()

	_, err := p.Acquire(ctx, "audit")
	require.Error(t, err)
	assert.True(t, domainerr.IsTransactionStartError(err))
	assert.Equal(t, uow.StateFailed, scope.State())

	// The half-built session must not leak.
	require.Len(t, client.sessions, 1)
	assert.Equal(t, 1, client.sessions[0].ended)
}

func TestProvider_StartSessionFailure(t *testing.T) {
	client := &fakeClient{startSessErr: errors.New("server selection timeout")}
	p, _ := newTestProvider(client, "audit")

	ctx, scope := uow.Begin(context.Background())
	defer func() { _ = scope.Close(ctx) }()

	_, err := p.Acquire(ctx, "audit")
	require.Error(t, err)
	assert.True(t, domainerr.IsTransactionStartError(err))
	assert.Equal(t, uow.StateFailed, scope.State())
}

func TestProvider_CompleteCommitsAndCloseEndsSession(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestProvider(client, "audit")

	ctx, scope := uow.Begin(context.Background())

	_, err := p.Acquire(ctx, "audit")
	require.NoError(t, err)

	require.NoError(t, scope.Complete(ctx))
	require.NoError(t, scope.Close(ctx))

	sess := client.sessions[0]
	assert.Equal(t, 1, sess.committed)
	assert.Equal(t, 0, sess.aborted)
	assert.Equal(t, 1, sess.ended)
	assert.Equal(t, uow.StateCompleted, scope.State())
}

func TestProvider_AbandonedScopeAborts(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestProvider(client, "audit")

	ctx, scope := uow.Begin(context.Background())

	_, err := p.Acquire(ctx, "audit")
	require.NoError(t, err)

	require.NoError(t, scope.Close(ctx))

	sess := client.sessions[0]
	assert.Equal(t, 0, sess.committed)
	assert.Equal(t, 1, sess.aborted)
	assert.Equal(t, 1, sess.ended)
	assert.Equal(t, uow.StateFailed, scope.State())
}

func TestProvider_CommitFailureSurfacesCommitError(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestProvider(client, "audit")

	ctx, scope := uow.Begin(context.Background())

	_, err := p.Acquire(ctx, "audit")
	require.NoError(t, err)
	client.sessions[0].commitErr = errors.New("no such transaction")

	err = scope.Complete(ctx)
	require.Error(t, err)
	assert.True(t, domainerr.IsCommitError(err))
	assert.Equal(t, uow.StateFailed, scope.State())
	assert.Equal(t, 1, client.sessions[0].aborted)

	require.NoError(t, scope.Close(ctx))
	assert.Equal(t, 1, client.sessions[0].ended)
}

func TestProvider_ChildScopeBorrowsHandle(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestProvider(client, "audit")

	parentCtx, parent := uow.Begin(context.Background())

	hParent, err := p.Acquire(parentCtx, "audit")
	require.NoError(t, err)

	childCtx, child := uow.Begin(parentCtx)

	hChild, err := p.Acquire(childCtx, "audit")
	require.NoError(t, err)
	assert.Same(t, hParent, hChild)

	require.NoError(t, child.Complete(childCtx))
	require.NoError(t, child.Close(childCtx))

	// Still one live session and transaction, owned by the parent.
	require.Len(t, client.sessions, 1)
	assert.Equal(t, 0, client.sessions[0].committed)
	assert.Equal(t, 0, client.sessions[0].ended)

	require.NoError(t, parent.Complete(parentCtx))
	require.NoError(t, parent.Close(parentCtx))
	assert.Equal(t, 1, client.sessions[0].committed)
	assert.Equal(t, 1, client.sessions[0].ended)
}
