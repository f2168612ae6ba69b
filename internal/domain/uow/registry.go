package uow

import (
	"sync"

	errs "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
)

// TransactionRegistry is the per-unit-of-work mapping from transaction key
// to transaction token. It decides nothing itself: the "is there already a
// transaction" question is answered here, while "how do I start one" lives
// in the backend providers, since the two backends start transactions
// differently.
type TransactionRegistry struct {
	mu      sync.Mutex
	entries map[TransactionKey]*Token
	order   []*Token
}

// NewTransactionRegistry creates an empty transaction registry
func NewTransactionRegistry() *TransactionRegistry {
	return &TransactionRegistry{entries: make(map[TransactionKey]*Token)}
}

// Find returns the live token for key, if any
func (r *TransactionRegistry) Find(key TransactionKey) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.entries[key]
	return tok, ok
}

// Add registers a token created by a provider. A key that is already
// present means two providers raced past the check-then-insert boundary.
func (r *TransactionRegistry) Add(key TransactionKey, tok *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return &errs.DuplicateRegistrationError{Kind: "transaction", Key: string(key)}
	}
	r.entries[key] = tok
	r.order = append(r.order, tok)
	return nil
}

// Tokens returns the registered tokens in registration order; completion
// commits them in exactly this order
func (r *TransactionRegistry) Tokens() []*Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Token, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tokens
func (r *TransactionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
