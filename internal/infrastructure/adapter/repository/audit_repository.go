package repository

import (
	"context"
	"fmt"
	"time"

	errs "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/documentdb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// auditHandle is the logical connection identity audit storage resolves
// through
const auditHandle = "audit"

// auditCollection is the collection audit entries are written to
const auditCollection = "audit_log"

// AuditEntry is an audit trail record for an order operation
type AuditEntry struct {
	OrderID    string    `bson:"order_id"`
	Action     string    `bson:"action"`
	Actor      string    `bson:"actor"`
	OccurredAt time.Time `bson:"occurred_at"`
	Details    bson.M    `bson:"details,omitempty"`
}

// AuditRepository writes audit entries to the document store through the
// ambient unit of work, so an entry only becomes visible when the scope
// that produced it completes.
type AuditRepository struct {
	provider *documentdb.Provider
	logger   coreport.Logger
}

// NewAuditRepository creates a new AuditRepository instance
func NewAuditRepository(provider *documentdb.Provider, logger coreport.Logger) *AuditRepository {
	return &AuditRepository{
		provider: provider,
		logger:   logger,
	}
}

// Record appends an audit entry
func (r *AuditRepository) Record(ctx context.Context, entry AuditEntry) error {
	h, err := r.provider.Acquire(ctx, auditHandle)
	if err != nil {
		return err
	}

	coll, err := documentdb.Collection(h, auditCollection)
	if err != nil {
		return fmt.Errorf("%w: %s", errs.ErrInternalServer, err.Error())
	}

	r.logger.Debug("Recording audit entry", map[string]any{
		"order_id": entry.OrderID,
		"action":   entry.Action,
	})

	if _, err := coll.InsertOne(h.Context(ctx), entry); err != nil {
		r.logger.Error("Failed to record audit entry", map[string]any{
			"order_id": entry.OrderID,
			"error":    err.Error(),
		})
		return fmt.Errorf("%w: %s", errs.ErrInternalServer, err.Error())
	}
	return nil
}

// ListByOrder returns the audit trail for an order, oldest first
func (r *AuditRepository) ListByOrder(ctx context.Context, orderID string) ([]AuditEntry, error) {
	h, err := r.provider.Acquire(ctx, auditHandle)
	if err != nil {
		return nil, err
	}

	coll, err := documentdb.Collection(h, auditCollection)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrInternalServer, err.Error())
	}

	sctx := h.Context(ctx)
	cursor, err := coll.Find(sctx, bson.M{"order_id": orderID},
		options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrInternalServer, err.Error())
	}
	defer func() { _ = cursor.Close(sctx) }()

	var entries []AuditEntry
	if err := cursor.All(sctx, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrInternalServer, err.Error())
	}
	return entries, nil
}
