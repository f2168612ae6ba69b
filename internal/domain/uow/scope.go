package uow

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	errs "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
)

// State is the lifecycle state of a unit of work
type State int

const (
	// StateActive accepts new resource handles and transactions
	StateActive State = iota
	// StateCompleting is driving its transactions to commit
	StateCompleting
	// StateCompleted committed every registered transaction
	StateCompleted
	// StateFailed rolled back; set on any error, explicit rollback or
	// abandonment
	StateFailed
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleting:
		return "completing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Scope is one unit of work: the root coordination object owning a
// resource cache and a transaction registry. Nested scopes link to their
// parent and read through it for token and resource lookups, but entries
// are written only at the scope that creates them.
type Scope struct {
	id            string
	parent        *Scope
	transactional bool
	isolation     sql.IsolationLevel
	hasIsolation  bool
	logger        coreport.Logger
	timeProvider  coreport.TimeProvider
	cancel        context.CancelFunc

	mu          sync.Mutex
	state       State
	closed      bool
	cache       *ResourceCache
	registry    *TransactionRegistry
	initialized map[ResourceKey]struct{}
}

// ID returns the unique scope identity
func (s *Scope) ID() string {
	return s.id
}

// Parent returns the enclosing scope, nil for the root
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Transactional reports whether this unit of work coordinates transactions.
// A non-transactional scope never creates a transaction token.
func (s *Scope) Transactional() bool {
	return s.transactional
}

// Isolation returns the requested isolation level and whether one was set
func (s *Scope) Isolation() (sql.IsolationLevel, bool) {
	return s.isolation, s.hasIsolation
}

// State returns the current lifecycle state
func (s *Scope) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TimeProvider returns the clock the scope was opened with
func (s *Scope) TimeProvider() coreport.TimeProvider {
	return s.timeProvider
}

// Fail marks the scope failed. Providers call it when a transaction start
// fails; the error itself still propagates to the caller.
func (s *Scope) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateActive || s.state == StateCompleting {
		s.state = StateFailed
	}
}

// FindResource looks up a handle by key in this scope and its ancestors
// without creating one
func (s *Scope) FindResource(key ResourceKey) (Resource, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if res, ok := sc.cache.Find(key); ok {
			return res, true
		}
	}
	return nil, false
}

// GetOrCreateResource returns the cached handle for key in this scope's
// own cache, invoking factory exactly once on a miss
func (s *Scope) GetOrCreateResource(ctx context.Context, key ResourceKey, factory func(ctx context.Context) (Resource, error)) (Resource, error) {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: scope %s is %s", errs.ErrScopeCompleted, s.id, state)
	}
	s.mu.Unlock()
	return s.cache.GetOrCreate(ctx, key, factory)
}

// AddResource inserts a handle created out of band into this scope's cache
func (s *Scope) AddResource(key ResourceKey, res Resource) error {
	return s.cache.Add(key, res)
}

// MarkInitialized records that the handle for key has been initialized.
// It returns false if the key was already marked, letting repeated calls
// from nested code paths become no-ops instead of re-opening transactions.
func (s *Scope) MarkInitialized(key ResourceKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.initialized[key]; ok {
		return false
	}
	s.initialized[key] = struct{}{}
	return true
}

// FindToken looks up a live token by key in this scope and its ancestors.
// A child scope finding an ancestor's token must attach to it rather than
// create a competing one.
func (s *Scope) FindToken(key TransactionKey) (*Token, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if tok, ok := sc.registry.Find(key); ok {
			return tok, true
		}
	}
	return nil, false
}

// AddToken registers a token created by a provider in this scope's own
// registry. Registering on a non-transactional scope, or for a key already
// held anywhere in the scope tree, is a coordination bug.
func (s *Scope) AddToken(key TransactionKey, tok *Token) error {
	if !s.transactional {
		return fmt.Errorf("%w: scope %s cannot own transactions", errs.ErrNonTransactionalScope, s.id)
	}
	if _, ok := s.FindToken(key); ok {
		return &errs.DuplicateRegistrationError{Kind: "transaction", Key: string(key)}
	}
	return s.registry.Add(key, tok)
}

// Complete signals intent to persist: every token registered in this
// scope is driven to commit in registration order. On the first commit
// failure the failed token and all not-yet-committed tokens are rolled
// back and the failure is surfaced; tokens already committed stay
// committed. Tokens owned by ancestor scopes are untouched - their
// outcome belongs to the scope that created them.
func (s *Scope) Complete(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: scope %s is %s", errs.ErrScopeCompleted, s.id, state)
	}
	s.state = StateCompleting
	s.mu.Unlock()

	tokens := s.registry.Tokens()
	for i, tok := range tokens {
		err := tok.commit(ctx)
		if err == nil {
			continue
		}

		rolledBack := make([]string, 0, len(tokens)-i)
		for _, t := range tokens[i:] {
			if t.Terminated() {
				continue
			}
			if rbErr := t.rollback(ctx); rbErr != nil {
				s.logger.Error("Rollback after commit failure also failed", map[string]any{
					"scope_id":        s.id,
					"transaction_key": string(t.Key()),
					"error":           rbErr.Error(),
				})
			}
			rolledBack = append(rolledBack, string(t.Key()))
		}

		s.setState(StateFailed)
		commitErr := &errs.CommitError{Key: string(tok.Key()), RolledBack: rolledBack, Err: err}
		s.logger.Error("Unit of work commit failed", commitErr.LogFields())
		return commitErr
	}

	s.setState(StateCompleted)
	s.logger.Debug("Unit of work completed", map[string]any{
		"scope_id":     s.id,
		"transactions": len(tokens),
	})
	return nil
}

// Close destroys the scope: if it was never completed, every owned token
// is rolled back; cached handles are released unconditionally either way.
// Close is idempotent and must be called exactly when the scope exits.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	abandoned := s.state == StateActive || s.state == StateCompleting
	s.mu.Unlock()

	if s.cancel != nil {
		defer s.cancel()
	}

	var firstErr error
	if abandoned {
		tokens := s.registry.Tokens()
		for _, tok := range tokens {
			if err := tok.rollback(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if len(tokens) > 0 {
			s.setState(StateFailed)
			s.logger.Warn("Unit of work abandoned, transactions rolled back", map[string]any{
				"scope_id":     s.id,
				"transactions": len(tokens),
			})
		} else {
			s.setState(StateCompleted)
		}
	}

	s.cache.ReleaseAll(ctx)
	return firstErr
}

func (s *Scope) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// --- defaults used when no logger or clock option is supplied

type nopLogger struct{}

func (nopLogger) SetLevel(coreport.LogLevel)   {}
func (nopLogger) Debug(string, map[string]any) {}
func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Warn(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}
func (nopLogger) Flush() error                 { return nil }

type systemClock struct{}

func (systemClock) Now() time.Time                  { return time.Now() }
func (systemClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (systemClock) WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}
func (systemClock) ParseDuration(s string) (time.Duration, error) { return time.ParseDuration(s) }
