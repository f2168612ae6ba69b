package core

import (
	"context"
	"time"
)

// TimeProvider abstracts time operations so that token timestamps and
// scope timeouts are controllable in tests
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc)
	ParseDuration(s string) (time.Duration, error)
}
