package database

import (
	"context"
	"database/sql"
	"fmt"

	domainerr "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/storage"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/uow"
	"gorm.io/gorm"
)

// BackendKind identifies relational transactions in transaction keys
const BackendKind = "relational"

// Source opens the pooled connection for a resolved target. Manager is the
// production implementation.
type Source interface {
	Open(ctx context.Context, target string) (*gorm.DB, error)
}

// Provider acquires relational resource handles for the ambient unit of
// work. Handles acquired under the same scope for the same logical identity
// share one cached handle, and handles on the same connection target share
// one coordinated transaction.
type Provider struct {
	source            Source
	resolver          storage.ConnectionResolver
	logger            coreport.Logger
	timeProvider      coreport.TimeProvider
	shareTransactions bool
}

// ProviderOption configures a Provider
type ProviderOption func(*Provider)

// WithoutTransactionSharing makes every handle on a shared target run its
// own independently attended transaction instead of joining the first one.
// Attended transactions lose atomicity across handles and exist for
// backends whose driver cannot hand out a second handle into an open
// transaction.
func WithoutTransactionSharing() ProviderOption {
	return func(p *Provider) { p.shareTransactions = false }
}

// NewProvider creates a relational resource provider
func NewProvider(
	source Source,
	resolver storage.ConnectionResolver,
	logger coreport.Logger,
	timeProvider coreport.TimeProvider,
	opts ...ProviderOption,
) *Provider {
	p := &Provider{
		source:            source,
		resolver:          resolver,
		logger:            logger,
		timeProvider:      timeProvider,
		shareTransactions: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns the relational handle for the given logical identity in
// the scope carried by ctx. The first acquisition for a connection target
// under a transactional scope begins the coordinated transaction; later
// acquisitions on the same target join it.
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

	// A handle cached by an ancestor scope serves nested scopes directly.
	// The scope's own cache stays behind GetOrCreateResource so its state
	// guard applies.
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
		return nil, fmt.Errorf("%w: resource %s is not a relational handle",
			domainerr.ErrInternalServer, resKey)
	}
	return h, nil
}

// create builds a new handle. Runs under the scope's resource cache lock,
// so two goroutines racing for the same target cannot both begin a
// transaction.
func (p *Provider) create(
	ctx context.Context,
	scope *uow.Scope,
	resKey uow.ResourceKey,
	txKey uow.TransactionKey,
	target string,
) (uow.Resource, error) {
	db, err := p.source.Open(ctx, target)
	if err != nil {
		if scope.Transactional() {
			scope.Fail()
			return nil, domainerr.NewTransactionStartError(BackendKind, string(txKey), err)
		}
		return nil, fmt.Errorf("%w: %v", domainerr.ErrDatabaseConnection, err)
	}

	if !scope.Transactional() {
		p.logger.Debug("Acquired non-transactional database handle", map[string]any{
			"resource": string(resKey),
			"scope_id": scope.ID(),
		})
		return &Handle{key: string(resKey), db: db}, nil
	}

	if tok, ok := scope.FindToken(txKey); ok {
		return p.join(ctx, scope, resKey, txKey, tok, db)
	}

	tx, iso, err := p.begin(ctx, scope, db)
	if err != nil {
		scope.Fail()
		return nil, domainerr.NewTransactionStartError(BackendKind, string(txKey), err)
	}

	tok := uow.NewToken(txKey, newGormTransaction(tx, p.logger), iso, p.timeProvider.Now())
	if err := scope.AddToken(txKey, tok); err != nil {
		// Registration can only be refused for a key the scope may not own.
		// The transaction just begun has no owner, so terminate it here.
		if rbErr := tx.Rollback().Error; rbErr != nil {
			p.logger.Error("Failed to rollback unregistered transaction", map[string]any{
				"transaction": string(txKey),
				"error":       rbErr.Error(),
			})
		}
		return nil, err
	}

	p.logger.Debug("Began coordinated database transaction", map[string]any{
		"resource":    string(resKey),
		"transaction": string(txKey),
		"scope_id":    scope.ID(),
	})
	return &Handle{key: string(resKey), db: tx, token: tok}, nil
}

// join attaches a new handle to the transaction already running on the
// handle's connection target.
func (p *Provider) join(
	ctx context.Context,
	scope *uow.Scope,
	resKey uow.ResourceKey,
	txKey uow.TransactionKey,
	tok *uow.Token,
	db *gorm.DB,
) (uow.Resource, error) {
	if p.shareTransactions {
		if sharer, ok := tok.Native().(storage.TransactionSharer); ok {
			shared, err := sharer.Share(ctx)
			if err != nil {
				scope.Fail()
				return nil, domainerr.NewTransactionStartError(BackendKind, string(txKey), err)
			}
			sharedDB, ok := shared.(*gorm.DB)
			if !ok {
				return nil, fmt.Errorf("%w: transaction %s shared a non-relational handle",
					domainerr.ErrInternalServer, txKey)
			}
			tok.Attach()
			p.logger.Debug("Joined coordinated database transaction", map[string]any{
				"resource":    string(resKey),
				"transaction": string(txKey),
				"scope_id":    scope.ID(),
			})
			return &Handle{key: string(resKey), db: sharedDB, token: tok}, nil
		}
	}

	// The running transaction cannot hand out a second handle, so this
	// handle gets its own attended transaction. It commits and rolls back
	// with the token but is not atomic with it.
	tx, _, err := p.begin(ctx, scope, db)
	if err != nil {
		scope.Fail()
		return nil, domainerr.NewTransactionStartError(BackendKind, string(txKey), err)
	}

	if err := tok.AttachAttended(newGormTransaction(tx, p.logger)); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			p.logger.Error("Failed to rollback attended transaction", map[string]any{
				"transaction": string(txKey),
				"error":       rbErr.Error(),
			})
		}
		return nil, err
	}
	tok.Attach()

	p.logger.Debug("Attached attended database transaction", map[string]any{
		"resource":    string(resKey),
		"transaction": string(txKey),
		"scope_id":    scope.ID(),
	})
	return &Handle{key: string(resKey), db: tx, token: tok}, nil
}

// begin starts a backend transaction with the scope's isolation level
func (p *Provider) begin(ctx context.Context, scope *uow.Scope, db *gorm.DB) (*gorm.DB, sql.IsolationLevel, error) {
	iso, hasIso := scope.Isolation()

	var tx *gorm.DB
	if hasIso {
		tx = db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: iso})
	} else {
		tx = db.WithContext(ctx).Begin()
	}
	if tx.Error != nil {
		p.logger.Error("Failed to begin transaction", map[string]any{"error": tx.Error.Error()})
		return nil, iso, tx.Error
	}
	return tx, iso, nil
}
