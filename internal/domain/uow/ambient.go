package uow

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	errs "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
)

// The ambient scope travels in the context, never in goroutine-local
// state: provider operations suspend on I/O and resume on a different
// goroutine, so the context is the only carrier that survives suspension.
type scopeContextKey struct{}

// Option configures a unit of work at Begin
type Option func(*scopeOptions)

type scopeOptions struct {
	transactional bool
	isolation     sql.IsolationLevel
	hasIsolation  bool
	timeout       time.Duration
	logger        coreport.Logger
	timeProvider  coreport.TimeProvider
}

// NonTransactional opens a scope that never creates transaction tokens;
// providers hand out plain connections instead
func NonTransactional() Option {
	return func(o *scopeOptions) { o.transactional = false }
}

// WithIsolation requests an isolation level for transactions started
// inside the scope; backends without a matching level use their default
func WithIsolation(level sql.IsolationLevel) Option {
	return func(o *scopeOptions) {
		o.isolation = level
		o.hasIsolation = true
	}
}

// WithTimeout bounds the lifetime of the scope's context
func WithTimeout(timeout time.Duration) Option {
	return func(o *scopeOptions) { o.timeout = timeout }
}

// WithLogger sets the logger for scope lifecycle events
func WithLogger(logger coreport.Logger) Option {
	return func(o *scopeOptions) { o.logger = logger }
}

// WithTimeProvider sets the clock used for token timestamps and timeouts
func WithTimeProvider(tp coreport.TimeProvider) Option {
	return func(o *scopeOptions) { o.timeProvider = tp }
}

// Begin opens a unit of work and returns a derived context carrying it.
// A scope already present in ctx becomes the parent; the child reads
// through it for ambient transactions instead of starting competing ones.
// The caller must Close the returned scope when the work exits, and
// Complete it first if the work should persist.
func Begin(ctx context.Context, opts ...Option) (context.Context, *Scope) {
	parent, _ := Current(ctx)

	o := scopeOptions{transactional: true}
	if parent != nil {
		o.logger = parent.logger
		o.timeProvider = parent.timeProvider
		o.isolation, o.hasIsolation = parent.Isolation()
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = nopLogger{}
	}
	if o.timeProvider == nil {
		o.timeProvider = systemClock{}
	}

	scope := &Scope{
		id:            uuid.NewString(),
		parent:        parent,
		transactional: o.transactional,
		isolation:     o.isolation,
		hasIsolation:  o.hasIsolation,
		logger:        o.logger,
		timeProvider:  o.timeProvider,
		state:         StateActive,
		cache:         NewResourceCache(),
		registry:      NewTransactionRegistry(),
		initialized:   make(map[ResourceKey]struct{}),
	}

	if o.timeout > 0 {
		ctx, scope.cancel = o.timeProvider.WithTimeout(ctx, o.timeout)
	}

	parentID := ""
	if parent != nil {
		parentID = parent.id
	}
	o.logger.Debug("Opened unit of work", map[string]any{
		"scope_id":      scope.id,
		"parent_id":     parentID,
		"transactional": scope.transactional,
	})

	return context.WithValue(ctx, scopeContextKey{}, scope), scope
}

// Current returns the innermost active unit of work carried by ctx
func Current(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(*Scope)
	return scope, ok
}

// Require returns the ambient unit of work or ErrNoActiveScope when
// storage access is attempted outside one. That is a programming error:
// it is surfaced to the caller and never retried.
func Require(ctx context.Context) (*Scope, error) {
	scope, ok := Current(ctx)
	if !ok {
		return nil, errs.ErrNoActiveScope
	}
	return scope, nil
}

// --- ambient cancellation fallback

var (
	defaultCtxMu sync.RWMutex
	defaultCtx   = context.Background()
)

// SetDefaultContext configures the process-wide cancellation signal used
// when an operation is invoked with a context that carries none
func SetDefaultContext(ctx context.Context) {
	defaultCtxMu.Lock()
	defaultCtx = ctx
	defaultCtxMu.Unlock()
}

// DefaultContext returns the configured ambient cancellation context
func DefaultContext() context.Context {
	defaultCtxMu.RLock()
	defer defaultCtxMu.RUnlock()
	return defaultCtx
}

// fallbackContext takes cancellation from the ambient default context and
// everything else (including the scope) from the caller's context
type fallbackContext struct {
	context.Context
	values context.Context
}

func (c fallbackContext) Value(key any) any {
	return c.values.Value(key)
}

// WithDefaultCancellation returns ctx unchanged when it already carries a
// cancellation signal; otherwise it grafts the ambient default signal onto
// it. Providers apply this at every suspending entry point.
func WithDefaultCancellation(ctx context.Context) context.Context {
	if ctx.Done() != nil {
		return ctx
	}
	base := DefaultContext()
	if base.Done() == nil {
		return ctx
	}
	return fallbackContext{Context: base, values: ctx}
}
