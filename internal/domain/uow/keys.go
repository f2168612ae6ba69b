package uow

// ResourceKey identifies one resource handle within a unit of work: the
// application-declared handle name plus the resolved connection target.
// Two requests with the same key inside one scope observe the same handle.
type ResourceKey string

// NewResourceKey derives the resource key for a handle name and a resolved
// connection target
func NewResourceKey(handle, target string) ResourceKey {
	return ResourceKey(handle + "@" + target)
}

// TransactionKey identifies one native transaction within a scope tree:
// the backend kind plus the resolved connection target. At most one live
// transaction token exists per key per unit of work.
type TransactionKey string

// NewTransactionKey derives the transaction key for a backend kind and a
// resolved connection target
func NewTransactionKey(backend, target string) TransactionKey {
	return TransactionKey(backend + "://" + target)
}
