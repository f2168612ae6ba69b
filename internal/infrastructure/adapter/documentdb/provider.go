package documentdb

import (
	"context"
	"fmt"
	"sync"

	domainerr "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/storage"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/uow"
)

// BackendKind identifies document-store transactions in transaction keys
const BackendKind = "document"

// DialFunc connects to the document store at the resolved target. Dial is
// the production implementation.
type DialFunc func(ctx context.Context, target string) (storage.Client, error)

// Provider acquires document-store resource handles for the ambient unit
// of work. All handles on one connection target within a scope share a
// single session, and transactional scopes run that session inside one
// multi-document transaction committed or aborted with the scope.
type Provider struct {
	dial         DialFunc
	resolver     storage.ConnectionResolver
	logger       coreport.Logger
	timeProvider coreport.TimeProvider
	database     string

	mu       sync.Mutex
	clients  map[string]storage.Client
	sessions map[sessionKey]storage.Session
}

// sessionKey tracks which scope started the session for a connection
// target, so later handles on the same target borrow it instead of
// starting their own
type sessionKey struct {
	scope  string
	target string
}

// NewProvider creates a document-store resource provider. The database
// name applies to every handle the provider hands out.
func NewProvider(
	dial DialFunc,
	resolver storage.ConnectionResolver,
	logger coreport.Logger,
	timeProvider coreport.TimeProvider,
	database string,
) *Provider {
	return &Provider{
		dial:         dial,
		resolver:     resolver,
		logger:       logger,
		timeProvider: timeProvider,
		database:     database,
		clients:      make(map[string]storage.Client),
		sessions:     make(map[sessionKey]storage.Session),
	}
}

// Acquire returns the document-store handle for the given logical identity
// in the scope carried by ctx. The first acquisition for a connection
// target starts the session, and under a transactional scope its
// transaction too; later acquisitions on the same target borrow them.
func (p *Provider) Acquire(ctx context.Context, handle string) (*Handle, error) {
	ctx = uow.WithDefaultCancellation(ctx)

	scope, err := uow.Require(ctx)
	if err != nil {
		return nil, err
	}

	target, err := p.resolver.Resolve(ctx, handle)
	if err != nil {
		return nil, err
	}

	resKey := uow.NewResourceKey(handle, target)
	txKey := uow.NewTransactionKey(BackendKind, target)

	if parent := scope.Parent(); parent != nil {
		if res, ok := parent.FindResource(resKey); ok {
			if h, ok := res.(*Handle); ok {
				return h, nil
			}
		}
	}

	res, err := scope.GetOrCreateResource(ctx, resKey, func(ctx context.Context) (uow.Resource, error) {
		return p.create(ctx, scope, resKey, txKey, target)
	})
	if err != nil {
		return nil, err
	}

	h, ok := res.(*Handle)
	if !ok {
		return nil, fmt.Errorf("%w: resource %s is not a document-store handle",
			domainerr.ErrInternalServer, resKey)
	}
	return h, nil
}

// create builds a new handle. Runs under the scope's resource cache lock.
func (p *Provider) create(
	ctx context.Context,
	scope *uow.Scope,
	resKey uow.ResourceKey,
	txKey uow.TransactionKey,
	target string,
) (uow.Resource, error) {
	client, err := p.client(ctx, target)
	if err != nil {
		if scope.Transactional() {
			scope.Fail()
			return nil, domainerr.NewTransactionStartError(BackendKind, string(txKey), err)
		}
		return nil, fmt.Errorf("%w: %v", domainerr.ErrDatabaseConnection, err)
	}

	if !scope.Transactional() {
		if sess, ok := p.scopeSession(scope, target); ok {
			p.logger.Debug("Borrowed non-transactional document-store session", map[string]any{
				"resource": string(resKey),
				"scope_id": scope.ID(),
			})
			return &Handle{
				key:      string(resKey),
				session:  sess,
				database: p.database,
			}, nil
		}

		sess, err := client.StartSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domainerr.ErrDatabaseConnection, err)
		}
		p.rememberSession(scope.ID(), target, sess)
		p.logger.Debug("Acquired non-transactional document-store handle", map[string]any{
			"resource": string(resKey),
			"scope_id": scope.ID(),
		})
		return &Handle{
			key:         string(resKey),
			session:     sess,
			database:    p.database,
			ownsSession: true,
			onRelease:   func() { p.forgetSession(scope.ID(), target) },
		}, nil
	}

	if tok, ok := scope.FindToken(txKey); ok {
		sess, ok := tok.Native().(storage.Session)
		if !ok {
			return nil, fmt.Errorf("%w: transaction %s is not session-backed",
				domainerr.ErrInternalServer, txKey)
		}
		tok.Attach()
		p.logger.Debug("Joined document-store transaction", map[string]any{
			"resource":    string(resKey),
			"transaction": string(txKey),
			"scope_id":    scope.ID(),
		})
		return &Handle{
			key:      string(resKey),
			session:  sess,
			database: p.database,
			token:    tok,
		}, nil
	}

	sess, err := client.StartSession(ctx)
	if err != nil {
		scope.Fail()
		return nil, domainerr.NewTransactionStartError(BackendKind, string(txKey), err)
	}
	if err := sess.StartTransaction(ctx); err != nil {
		sess.End(ctx)
		scope.Fail()
		return nil, domainerr.NewTransactionStartError(BackendKind, string(txKey), err)
	}

	iso, _ := scope.Isolation()
	tok := uow.NewToken(txKey, sess, iso, p.timeProvider.Now())
	if err := scope.AddToken(txKey, tok); err != nil {
		if rbErr := sess.Rollback(ctx); rbErr != nil {
			p.logger.Error("Failed to abort unregistered transaction", map[string]any{
				"transaction": string(txKey),
				"error":       rbErr.Error(),
			})
		}
		sess.End(ctx)
		return nil, err
	}

	p.logger.Debug("Began document-store transaction", map[string]any{
		"resource":    string(resKey),
		"transaction": string(txKey),
		"scope_id":    scope.ID(),
	})
	return &Handle{
		key:         string(resKey),
		session:     sess,
		database:    p.database,
		ownsSession: true,
		token:       tok,
	}, nil
}

// scopeSession finds the session already started for target by this scope
// or one of its ancestors
func (p *Provider) scopeSession(scope *uow.Scope, target string) (storage.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sc := scope; sc != nil; sc = sc.Parent() {
		if sess, ok := p.sessions[sessionKey{scope: sc.ID(), target: target}]; ok {
			return sess, true
		}
	}
	return nil, false
}

func (p *Provider) rememberSession(scopeID, target string, sess storage.Session) {
	p.mu.Lock()
	p.sessions[sessionKey{scope: scopeID, target: target}] = sess
	p.mu.Unlock()
}

func (p *Provider) forgetSession(scopeID, target string) {
	p.mu.Lock()
	delete(p.sessions, sessionKey{scope: scopeID, target: target})
	p.mu.Unlock()
}

// client returns the cached client for target, dialing on first use
func (p *Provider) client(ctx context.Context, target string) (storage.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[target]; ok {
		return c, nil
	}

	p.logger.Info("Connecting to document store", map[string]any{"target": target})
	c, err := p.dial(ctx, target)
	if err != nil {
		return nil, err
	}

	p.clients[target] = c
	return c, nil
}
