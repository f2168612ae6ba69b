package repository

import (
	"context"
	"fmt"

	errs "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/database"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/model"
)

// ordersHandle is the logical connection identity order storage resolves
// through
const ordersHandle = "orders"

// OrderRepository persists orders through the ambient unit of work. Every
// call acquires its handle from the scope carried in ctx, so writes made
// within one scope share a transaction and commit together. Driver errors
// are translated to domain errors by the manager's error mapper.
type OrderRepository struct {
	provider *database.Provider
	mapper   *database.ErrorMapper
	logger   coreport.Logger
}

// NewOrderRepository creates a new OrderRepository instance
func NewOrderRepository(provider *database.Provider, mapper *database.ErrorMapper, logger coreport.Logger) *OrderRepository {
	return &OrderRepository{
		provider: provider,
		mapper:   mapper,
		logger:   logger,
	}
}

// Create saves a new order
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	h, err := r.provider.Acquire(ctx, ordersHandle)
	if err != nil {
		return err
	}

	r.logger.Debug("Creating order", map[string]any{
		"order_id": order.ID,
		"customer": order.Customer,
	})

	if err := h.DB().WithContext(ctx).Create(order).Error; err != nil {
		r.logger.Error("Failed to create order", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return r.mapper.MapError(err, "create order")
	}
	return nil
}

// GetByID loads an order by its identifier
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	h, err := r.provider.Acquire(ctx, ordersHandle)
	if err != nil {
		return nil, err
	}

	var order model.Order
	result := h.DB().WithContext(ctx).First(&order, "id = ?", id)
	if result.Error != nil {
		return nil, r.mapper.MapError(result.Error, fmt.Sprintf("get order %s", id))
	}
	return &order, nil
}

// UpdateStatus transitions an order to a new status
func (r *OrderRepository) UpdateStatus(ctx context.Context, id, status string) error {
	h, err := r.provider.Acquire(ctx, ordersHandle)
	if err != nil {
		return err
	}

	result := h.DB().WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return r.mapper.MapError(result.Error, fmt.Sprintf("update order %s", id))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: order %s", errs.ErrNotFound, id)
	}
	return nil
}
