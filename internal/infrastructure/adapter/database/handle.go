package database

import (
	"context"

	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/uow"
	"gorm.io/gorm"
)

// Handle is the relational resource cached on a unit of work scope. Its
// database handle is bound to the scope's transaction when the scope is
// transactional, and to the shared pooled connection otherwise.
type Handle struct {
	key   string
	db    *gorm.DB
	token *uow.Token
}

// Key returns the resource key the handle is cached under
func (h *Handle) Key() string { return h.key }

// DB returns the database handle for executing queries
func (h *Handle) DB() *gorm.DB { return h.db }

// Token returns the transaction token the handle participates in, or nil
// for a non-transactional handle
func (h *Handle) Token() *uow.Token { return h.token }

// Transactional reports whether queries on this handle run inside a
// coordinated transaction
func (h *Handle) Transactional() bool { return h.token != nil }

// Release is called when the owning scope closes. The underlying connection
// is pooled and shared across scopes, so there is nothing to tear down here;
// transaction termination is the token's job.
func (h *Handle) Release(ctx context.Context) {}

var _ uow.Resource = (*Handle)(nil)
