package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Manager manages relational database connections. Coordination may span
// several connection targets at once, so the manager keeps one pooled GORM
// connection per resolved target and hands out the same instance for
// repeated opens of that target.
type Manager struct {
	config       *Config
	logger       coreport.Logger
	errorMapper  *ErrorMapper
	timeProvider coreport.TimeProvider

	mu    sync.Mutex
	conns map[string]*gorm.DB
}

// NewManager creates a new database manager
func NewManager(config *Config, logger coreport.Logger, timeProvider coreport.TimeProvider) *Manager {
	return &Manager{
		config:       config,
		logger:       logger,
		errorMapper:  NewErrorMapper(),
		timeProvider: timeProvider,
		conns:        make(map[string]*gorm.DB),
	}
}

// Open returns the pooled connection for the given target, dialing it on
// first use. The target is the DSN produced by the connection resolver.
func (m *Manager) Open(ctx context.Context, target string) (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.conns[target]; ok {
		return db, nil
	}

	db, err := m.dial(ctx, target)
	if err != nil {
		return nil, err
	}

	m.conns[target] = db
	return db, nil
}

// dial establishes a connection with pooling configured. Called with the
// manager lock held.
func (m *Manager) dial(ctx context.Context, target string) (*gorm.DB, error) {
	m.logger.Info("Connecting to database", map[string]any{
		"driver": m.config.Driver,
		"target": target,
	})

	attempts := m.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var gormDB *gorm.DB
	var err error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			m.logger.Warn("Retrying database connection", map[string]any{
				"attempt": attempt + 1,
				"of":      attempts,
				"delay":   m.config.RetryDelay.String(),
			})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.config.RetryDelay):
			}
		}

		gormCfg := &gorm.Config{
			Logger: NewDatabaseLogger(m.logger, m.timeProvider, m.config.LogLevel),
			NowFunc: func() time.Time {
				return m.timeProvider.Now()
			},
		}

		switch m.config.Driver {
		case "postgres":
			gormDB, err = gorm.Open(postgres.Open(target), gormCfg)
		case "sqlite":
			gormDB, err = gorm.Open(sqlite.Open(target), gormCfg)
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", m.config.Driver)
		}

		if err == nil {
			break
		}

		m.logger.Error("Failed to connect to database", map[string]any{
			"error":   err.Error(),
			"attempt": attempt + 1,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(m.config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(m.config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)

	m.logger.Info("Successfully connected to database", map[string]any{
		"driver":         m.config.Driver,
		"target":         target,
		"max_open_conns": m.config.MaxOpenConns,
		"max_idle_conns": m.config.MaxIdleConns,
	})

	return gormDB, nil
}

// poolStats returns the sql pool statistics per open target
func (m *Manager) poolStats() map[string]sql.DBStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]sql.DBStats, len(m.conns))
	for target, db := range m.conns {
		sqlDB, err := db.DB()
		if err != nil {
			continue
		}
		stats[target] = sqlDB.Stats()
	}
	return stats
}

// GetErrorMapper returns the error mapper
func (m *Manager) GetErrorMapper() *ErrorMapper {
	return m.errorMapper
}

// Close closes every open connection. The last error encountered is
// returned.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Closing database connections", map[string]any{
		"count": len(m.conns),
	})

	var lastErr error
	for target, db := range m.conns {
		sqlDB, err := db.DB()
		if err != nil {
			lastErr = fmt.Errorf("failed to get database connection for %s: %w", target, err)
			continue
		}
		if err := sqlDB.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close connection for %s: %w", target, err)
		}
		delete(m.conns, target)
	}

	return lastErr
}
