package storage

import "context"

// Session is a document-store server session. Unlike relational
// connections, one session multiplexes every participant of a scope, so
// attaching to an ambient transaction reuses the session object directly.
type Session interface {
	// StartTransaction starts a transaction on the session
	StartTransaction(ctx context.Context) error
	// Commit commits the session's active transaction
	Commit(ctx context.Context) error
	// Rollback aborts the session's active transaction
	Rollback(ctx context.Context) error
	// End releases the server session; called when the owning scope closes
	End(ctx context.Context)
	// Context binds the session to a context so that driver operations
	// issued with it participate in the session's transaction
	Context(ctx context.Context) context.Context
}

// Client opens document-store sessions
type Client interface {
	StartSession(ctx context.Context) (Session, error)
}
