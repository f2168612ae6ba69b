package documentdb

import (
	"context"

	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/storage"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/uow"
)

// Handle is the document-store resource cached on a unit of work scope. It
// carries the session whose causal consistency and transaction the scope's
// operations run under. Only the handle that started the session ends it;
// handles that joined an existing transaction borrow its session.
type Handle struct {
	key         string
	session     storage.Session
	database    string
	ownsSession bool
	token       *uow.Token
	onRelease   func()
}

// Key returns the resource key the handle is cached under
func (h *Handle) Key() string { return h.key }

// Session returns the backend session operations must run under
func (h *Handle) Session() storage.Session { return h.session }

// Database returns the database name this handle targets
func (h *Handle) Database() string { return h.database }

// Token returns the transaction token the handle participates in, or nil
// for a non-transactional handle
func (h *Handle) Token() *uow.Token { return h.token }

// Transactional reports whether operations on this handle run inside a
// coordinated transaction
func (h *Handle) Transactional() bool { return h.token != nil }

// Context binds ctx to the handle's session so driver operations are
// routed through it
func (h *Handle) Context(ctx context.Context) context.Context {
	return h.session.Context(ctx)
}

// Release ends the session if this handle started it. Transaction
// termination happened before release, through the token.
func (h *Handle) Release(ctx context.Context) {
	if h.ownsSession {
		h.session.End(ctx)
	}
	if h.onRelease != nil {
		h.onRelease()
	}
}

var _ uow.Resource = (*Handle)(nil)
