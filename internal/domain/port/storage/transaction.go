package storage

import "context"

// NativeTransaction is the backend-native transaction (relational) or
// session-bound transaction (document store) that a transaction token wraps.
// The coordination core only ever drives it to exactly one of Commit or
// Rollback; query execution is not part of this port.
type NativeTransaction interface {
	// Commit commits the native transaction
	Commit(ctx context.Context) error
	// Rollback rolls back the native transaction
	Rollback(ctx context.Context) error
}

// TransactionSharer is an optional capability of a NativeTransaction. When a
// second resource handle joins an already-running transaction on the same
// connection target, Share returns a backend handle bound to that same
// transaction (for relational backends, a *gorm.DB executing inside the open
// transaction). Backends that cannot hand out such a handle simply do not
// implement this interface and callers fall back to independently attended
// transactions.
type TransactionSharer interface {
	NativeTransaction
	Share(ctx context.Context) (any, error)
}

// ConnectionResolver resolves a logical backend identity (e.g. a business
// connection name) into a concrete connection target. The core treats the
// result as an opaque string used solely to compute resource and
// transaction keys.
type ConnectionResolver interface {
	Resolve(ctx context.Context, identity string) (string, error)
}
