package database

import (
	"context"
	"testing"
	"time"

	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolMonitor_CollectsStatsPerTarget(t *testing.T) {
	mgr := newTestManager(t)
	target := memoryTarget(t)

	_, err := mgr.Open(context.Background(), target)
	require.NoError(t, err)

	monitor := NewPoolMonitor(mgr, logger.NewNoopLogger())
	monitor.Start(time.Hour)
	defer monitor.Stop()

	metrics := monitor.Metrics()
	require.Contains(t, metrics, target)
	assert.Equal(t, 4, metrics[target].MaxOpenConnections)
	assert.GreaterOrEqual(t, metrics[target].OpenConnections, 0)
}

func TestPoolMonitor_EmptyManager(t *testing.T) {
	mgr := newTestManager(t)

	monitor := NewPoolMonitor(mgr, logger.NewNoopLogger())
	monitor.Start(time.Hour)
	defer monitor.Stop()

	assert.Empty(t, monitor.Metrics())
}

func TestPoolMonitor_StopIsIdempotent(t *testing.T) {
	mgr := newTestManager(t)

	monitor := NewPoolMonitor(mgr, logger.NewNoopLogger())
	monitor.Start(time.Millisecond)

	monitor.Stop()
	monitor.Stop()
}
