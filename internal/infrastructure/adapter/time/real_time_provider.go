package time

import (
	"context"
	"time"

	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
)

// RealTimeProvider implements TimeProvider using the standard time package
type RealTimeProvider struct{}

// NewRealTimeProvider creates a new instance of RealTimeProvider
func NewRealTimeProvider() core.TimeProvider {
	return &RealTimeProvider{}
}

// Now returns the current time
func (p *RealTimeProvider) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t
func (p *RealTimeProvider) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// WithTimeout returns a context with the given timeout applied
func (p *RealTimeProvider) WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// ParseDuration parses a duration string
func (p *RealTimeProvider) ParseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
