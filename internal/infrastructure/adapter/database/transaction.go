package database

import (
	"context"
	"fmt"
	"strings"

	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/storage"
	"gorm.io/gorm"
)

// gormTransaction wraps an open GORM transaction as the native transaction
// behind a coordination token. It also implements TransactionSharer so that
// additional resource handles on the same connection target can execute
// inside the same transaction.
type gormTransaction struct {
	tx     *gorm.DB
	logger coreport.Logger
}

func newGormTransaction(tx *gorm.DB, logger coreport.Logger) *gormTransaction {
	return &gormTransaction{tx: tx, logger: logger}
}

// Commit commits the transaction
func (t *gormTransaction) Commit(ctx context.Context) error {
	t.logger.Debug("Committing database transaction", nil)

	if err := t.tx.WithContext(ctx).Commit().Error; err != nil {
		t.logger.Error("Failed to commit transaction", map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction. A transaction that has already been
// committed or rolled back is treated as a no-op rather than an error, since
// the driver may have aborted it on a failed commit.
func (t *gormTransaction) Rollback(ctx context.Context) error {
	t.logger.Debug("Rolling back database transaction", nil)

	err := t.tx.WithContext(ctx).Rollback().Error
	if err != nil && strings.Contains(err.Error(), "already been committed or rolled back") {
		t.logger.Warn("Transaction has already been committed or rolled back", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	if err != nil {
		t.logger.Error("Failed to rollback transaction", map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Share returns a database handle executing inside this transaction
func (t *gormTransaction) Share(ctx context.Context) (any, error) {
	return t.tx.WithContext(ctx), nil
}

var _ storage.TransactionSharer = (*gormTransaction)(nil)
