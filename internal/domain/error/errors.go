package error

import (
	"errors"
	"fmt"
)

// Error codes for standardized API responses
const (
	// 4xxx - Caller errors
	CodeNoActiveScope         = 4100
	CodeScopeCompleted        = 4101
	CodeInvalidRequest        = 4102
	CodeNonTransactionalScope = 4103
	CodeNotFound              = 4040

	// 5xxx - Coordination and backend errors
	CodeInternalServer        = 5000
	CodeDuplicateRegistration = 5001
	CodeTransactionStart      = 5030
	CodeCommitFailed          = 5031
	CodeDatabaseConnection    = 5032
	CodeResolveConnection     = 5033
)

// Base error types
var (
	// ErrNoActiveScope is returned when storage access is attempted outside
	// a unit of work; this is a programming error and is never retried
	ErrNoActiveScope = errors.New("no active unit of work in context")

	// ErrScopeCompleted is returned when a lifecycle operation is invoked on
	// a scope that has already completed or failed
	ErrScopeCompleted = errors.New("unit of work already completed")

	// ErrNonTransactionalScope indicates a provider bug: a transaction token
	// was registered on a scope opened without transaction coordination
	ErrNonTransactionalScope = errors.New("scope is non-transactional")

	// ErrTransactionStart is returned when the backend fails to begin a
	// native transaction or start a session
	ErrTransactionStart = errors.New("failed to start backend transaction")

	// ErrCommitFailed is returned when a transaction token fails to commit
	// during scope completion
	ErrCommitFailed = errors.New("failed to commit transaction")

	// ErrDuplicateRegistration indicates a coordination bug: two providers
	// raced past the check-then-insert boundary of a cache or registry
	ErrDuplicateRegistration = errors.New("duplicate resource or transaction registration")

	// ErrResolveConnection is returned when a logical backend identity
	// cannot be resolved to a connection target
	ErrResolveConnection = errors.New("failed to resolve connection target")

	// ErrDatabaseConnection is returned when there's a problem connecting to a backend
	ErrDatabaseConnection = errors.New("database connection error")

	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidRequest is returned when the request format is invalid
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInternalServer is returned for unexpected server-side errors
	ErrInternalServer = errors.New("internal server error")
)

// ErrorCode returns standardized error codes for known errors
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrNoActiveScope):
		return CodeNoActiveScope
	case errors.Is(err, ErrScopeCompleted):
		return CodeScopeCompleted
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrNonTransactionalScope):
		return CodeNonTransactionalScope
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDuplicateRegistration):
		return CodeDuplicateRegistration
	case errors.Is(err, ErrTransactionStart):
		return CodeTransactionStart
	case errors.Is(err, ErrCommitFailed):
		return CodeCommitFailed
	case errors.Is(err, ErrDatabaseConnection):
		return CodeDatabaseConnection
	case errors.Is(err, ErrResolveConnection):
		return CodeResolveConnection
	default:
		return CodeInternalServer
	}
}

// TransactionStartError carries the backend and key of a failed
// transaction or session start
type TransactionStartError struct {
	Backend string
	Key     string
	Err     error
}

// Error implements the error interface for TransactionStartError
func (e *TransactionStartError) Error() string {
	return fmt.Sprintf("failed to start %s transaction for %s: %v", e.Backend, e.Key, e.Err)
}

// Unwrap returns the underlying error
func (e *TransactionStartError) Unwrap() error {
	return e.Err
}

// Is checks if the target error is an ErrTransactionStart
func (e *TransactionStartError) Is(target error) bool {
	return target == ErrTransactionStart
}

// LogFields returns a map of fields for structured logging
func (e *TransactionStartError) LogFields() map[string]any {
	return map[string]any{
		"error_type":      "transaction_start",
		"backend":         e.Backend,
		"transaction_key": e.Key,
		"error":           e.Err.Error(),
		"error_code":      CodeTransactionStart,
	}
}

// NewTransactionStartError creates a detailed transaction start error
func NewTransactionStartError(backend, key string, err error) error {
	return &TransactionStartError{Backend: backend, Key: key, Err: err}
}

// CommitError reports the token that failed to commit during scope
// completion together with the keys of the tokens that were rolled back
// because of it. Tokens committed before the failure stay committed;
// cross-backend atomicity is best-effort.
type CommitError struct {
	Key        string
	RolledBack []string
	Err        error
}

// Error implements the error interface for CommitError
func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed for transaction %s (%d sibling(s) rolled back): %v",
		e.Key, len(e.RolledBack), e.Err)
}

// Unwrap returns the underlying error
func (e *CommitError) Unwrap() error {
	return e.Err
}

// Is checks if the target error is an ErrCommitFailed
func (e *CommitError) Is(target error) bool {
	return target == ErrCommitFailed
}

// LogFields returns a map of fields for structured logging
func (e *CommitError) LogFields() map[string]any {
	return map[string]any{
		"error_type":      "commit_failed",
		"transaction_key": e.Key,
		"rolled_back":     e.RolledBack,
		"error":           e.Err.Error(),
		"error_code":      CodeCommitFailed,
	}
}

// DuplicateRegistrationError identifies the cache or registry entry
// that was registered twice
type DuplicateRegistrationError struct {
	Kind string // "resource" or "transaction"
	Key  string
}

// Error implements the error interface for DuplicateRegistrationError
func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("duplicate %s registration for key %s", e.Kind, e.Key)
}

// Is checks if the target error is an ErrDuplicateRegistration
func (e *DuplicateRegistrationError) Is(target error) bool {
	return target == ErrDuplicateRegistration
}

// LogFields returns a map of fields for structured logging
func (e *DuplicateRegistrationError) LogFields() map[string]any {
	return map[string]any{
		"error_type": "duplicate_registration",
		"kind":       e.Kind,
		"key":        e.Key,
		"error_code": CodeDuplicateRegistration,
	}
}

// IsNoActiveScopeError checks if the error signals a missing ambient scope
func IsNoActiveScopeError(err error) bool {
	return errors.Is(err, ErrNoActiveScope)
}

// IsTransactionStartError checks if the error came from a failed begin/start-session
func IsTransactionStartError(err error) bool {
	return errors.Is(err, ErrTransactionStart)
}

// IsCommitError checks if the error came from a failed commit during completion
func IsCommitError(err error) bool {
	return errors.Is(err, ErrCommitFailed)
}
