package database

import (
	"sync"
	"time"

	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
)

// PoolMetrics tracks connection pool metrics for one target
type PoolMetrics struct {
	OpenConnections    int
	IdleConnections    int
	MaxOpenConnections int
	InUse              int
	WaitCount          int64
	WaitDuration       time.Duration
}

// PoolMonitor periodically samples the pool statistics of every connection
// the manager holds and warns when a pool is close to exhaustion.
type PoolMonitor struct {
	manager *Manager
	logger  coreport.Logger

	mu       sync.RWMutex
	metrics  map[string]PoolMetrics
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewPoolMonitor creates a monitor over the manager's connections
func NewPoolMonitor(manager *Manager, logger coreport.Logger) *PoolMonitor {
	return &PoolMonitor{
		manager:  manager,
		logger:   logger,
		metrics:  make(map[string]PoolMetrics),
		stopChan: make(chan struct{}),
	}
}

// Start begins sampling at the given interval
func (m *PoolMonitor) Start(interval time.Duration) {
	m.collect()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.collect()
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop ends sampling. Safe to call more than once.
func (m *PoolMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// Metrics returns the most recent sample per target
func (m *PoolMonitor) Metrics() map[string]PoolMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]PoolMetrics, len(m.metrics))
	for target, metrics := range m.metrics {
		out[target] = metrics
	}
	return out
}

func (m *PoolMonitor) collect() {
	for target, stats := range m.manager.poolStats() {
		m.mu.Lock()
		m.metrics[target] = PoolMetrics{
			OpenConnections:    stats.OpenConnections,
			IdleConnections:    stats.Idle,
			MaxOpenConnections: stats.MaxOpenConnections,
			InUse:              stats.InUse,
			WaitCount:          stats.WaitCount,
			WaitDuration:       stats.WaitDuration,
		}
		m.mu.Unlock()

		threshold := float64(stats.MaxOpenConnections) * 0.8
		if stats.MaxOpenConnections > 0 && float64(stats.InUse) > threshold {
			m.logger.Warn("Database connection pool nearly exhausted", map[string]any{
				"target":     target,
				"in_use":     stats.InUse,
				"max_open":   stats.MaxOpenConnections,
				"idle":       stats.Idle,
				"wait_count": stats.WaitCount,
				"wait_time":  stats.WaitDuration.String(),
			})
		}
	}
}
