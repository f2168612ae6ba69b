package resolver

import (
	"context"
	"fmt"
	"sync"

	domainerr "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/storage"
)

// Static resolves logical connection identities from an in-memory table.
// It is the default resolver wired at startup from configuration; deployments
// with dynamic connection routing can substitute their own ConnectionResolver.
type Static struct {
	mu      sync.RWMutex
	targets map[string]string
}

// NewStatic creates a resolver pre-populated with the given identity to
// target mapping. The map may be nil.
func NewStatic(targets map[string]string) *Static {
	s := &Static{targets: make(map[string]string, len(targets))}
	for identity, target := range targets {
		s.targets[identity] = target
	}
	return s
}

// Register adds or replaces the target for a logical identity.
func (s *Static) Register(identity, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[identity] = target
}

// Resolve returns the connection target for the given identity.
func (s *Static) Resolve(_ context.Context, identity string) (string, error) {
	s.mu.RLock()
	target, ok := s.targets[identity]
	s.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: no target registered for %q",
			domainerr.ErrResolveConnection, identity)
	}
	return target, nil
}

var _ storage.ConnectionResolver = (*Static)(nil)
