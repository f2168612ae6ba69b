package uow

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	errs "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/storage"
)

// tokenOutcome tracks the single terminal decision applied to a token
type tokenOutcome int

const (
	outcomePending tokenOutcome = iota
	outcomeCommitted
	outcomeRolledBack
)

// Token represents one in-flight native transaction and its participants.
// It is owned exclusively by the transaction registry entry that created
// it; resource handles hold borrowed references and never terminate it.
// Only the owning scope's completion logic applies the final outcome.
type Token struct {
	key       TransactionKey
	native    storage.NativeTransaction
	isolation sql.IsolationLevel
	createdAt time.Time

	mu           sync.Mutex
	outcome      tokenOutcome
	participants int
	// attended holds independently-begun transactions from providers whose
	// driver cannot share a transaction object across handles. They receive
	// the same outcome as the primary transaction, but this is best-effort:
	// it does not guarantee single-transaction atomicity.
	attended []storage.NativeTransaction
}

// NewToken wraps a successfully started native transaction. Callers must
// register the token only after the native start succeeded, so a canceled
// start never leaves a half-registered token behind.
func NewToken(key TransactionKey, native storage.NativeTransaction, isolation sql.IsolationLevel, createdAt time.Time) *Token {
	return &Token{
		key:       key,
		native:    native,
		isolation: isolation,
		createdAt: createdAt,
	}
}

// Key returns the transaction key the token is registered under
func (t *Token) Key() TransactionKey {
	return t.key
}

// Native returns the wrapped native transaction. Borrowers must not
// commit or roll it back.
func (t *Token) Native() storage.NativeTransaction {
	return t.native
}

// Isolation returns the isolation level the transaction was started with
func (t *Token) Isolation() sql.IsolationLevel {
	return t.isolation
}

// CreatedAt returns when the native transaction was started
func (t *Token) CreatedAt() time.Time {
	return t.createdAt
}

// Attach records one more resource handle participating in the transaction
func (t *Token) Attach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.participants++
}

// Participants returns the number of attached resource handles
func (t *Token) Participants() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.participants
}

// AttachAttended records an independently-begun native transaction that
// must follow the token's outcome (the no-sharing fallback path)
func (t *Token) AttachAttended(native storage.NativeTransaction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outcome != outcomePending {
		return errs.ErrScopeCompleted
	}
	t.attended = append(t.attended, native)
	return nil
}

// Terminated reports whether a final outcome has been applied
func (t *Token) Terminated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome != outcomePending
}

// commit applies the commit outcome exactly once. A failed primary commit
// leaves the token pending so completion can still roll it back; a failed
// attended commit surfaces the error but the token counts as committed,
// because the primary transaction is already durable.
func (t *Token) commit(ctx context.Context) error {
	t.mu.Lock()
	if t.outcome != outcomePending {
		t.mu.Unlock()
		return fmt.Errorf("%w: transaction %s already terminated", errs.ErrScopeCompleted, t.key)
	}
	attended := t.attended
	t.mu.Unlock()

	if err := t.native.Commit(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	t.outcome = outcomeCommitted
	t.mu.Unlock()

	for _, a := range attended {
		if err := a.Commit(ctx); err != nil {
			return fmt.Errorf("attended transaction commit failed for %s: %w", t.key, err)
		}
	}
	return nil
}

// rollback applies the rollback outcome. Rolling back an already
// rolled-back token is a no-op; rolling back a committed token is a
// coordination bug.
func (t *Token) rollback(ctx context.Context) error {
	t.mu.Lock()
	if t.outcome == outcomeRolledBack {
		t.mu.Unlock()
		return nil
	}
	if t.outcome == outcomeCommitted {
		t.mu.Unlock()
		return fmt.Errorf("%w: transaction %s already committed", errs.ErrScopeCompleted, t.key)
	}
	t.outcome = outcomeRolledBack
	attended := t.attended
	t.mu.Unlock()

	err := t.native.Rollback(ctx)
	for _, a := range attended {
		if aErr := a.Rollback(ctx); aErr != nil && err == nil {
			err = aErr
		}
	}
	return err
}
