package handler

import (
	"errors"
	"net/http"

	domainerr "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/uow"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/api/dto"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/model"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler handles order-related HTTP requests
type OrderHandler struct {
	orders       *repository.OrderRepository
	audit        *repository.AuditRepository
	logger       coreport.Logger
	timeProvider coreport.TimeProvider
}

// NewOrderHandler creates a new order handler instance
func NewOrderHandler(
	orders *repository.OrderRepository,
	audit *repository.AuditRepository,
	logger coreport.Logger,
	timeProvider coreport.TimeProvider,
) *OrderHandler {
	return &OrderHandler{
		orders:       orders,
		audit:        audit,
		logger:       logger,
		timeProvider: timeProvider,
	}
}

// CreateOrder handles the POST /orders endpoint. The order row and its
// audit entry are written under the request's unit of work and persist
// only if completing the scope commits both backends.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid order request format", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    domainerr.ErrorCode(domainerr.ErrInvalidRequest),
			Message: "Invalid request format: " + err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	scope, err := uow.Require(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	order := &model.Order{
		ID:        uuid.NewString(),
		Customer:  req.Customer,
		Item:      req.Item,
		Quantity:  req.Quantity,
		Status:    model.OrderStatusPending,
		CreatedAt: h.timeProvider.Now(),
		UpdatedAt: h.timeProvider.Now(),
	}

	if err := h.orders.Create(ctx, order); err != nil {
		h.respondError(c, err)
		return
	}

	entry := repository.AuditEntry{
		OrderID:    order.ID,
		Action:     "order.created",
		Actor:      c.GetHeader("X-Actor"),
		OccurredAt: h.timeProvider.Now(),
	}
	if err := h.audit.Record(ctx, entry); err != nil {
		h.respondError(c, err)
		return
	}

	if err := scope.Complete(ctx); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.OrderResponse{
		ID:        order.ID,
		Customer:  order.Customer,
		Item:      order.Item,
		Quantity:  order.Quantity,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
	})
}

// GetOrder handles the GET /orders/{orderId} endpoint
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("orderId")

	ctx := c.Request.Context()
	order, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.OrderResponse{
		ID:        order.ID,
		Customer:  order.Customer,
		Item:      order.Item,
		Quantity:  order.Quantity,
		Status:    order.Status,
		CreatedAt: order.CreatedAt,
	})
}

// GetOrderAudit handles the GET /orders/{orderId}/audit endpoint
func (h *OrderHandler) GetOrderAudit(c *gin.Context) {
	orderID := c.Param("orderId")

	ctx := c.Request.Context()
	entries, err := h.audit.ListByOrder(ctx, orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.AuditEntryResponse{
			Action:     e.Action,
			Actor:      e.Actor,
			OccurredAt: e.OccurredAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// respondError maps a domain error to an HTTP response
func (h *OrderHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, domainerr.ErrNotFound):
		status = http.StatusNotFound
		message = "Order not found"
	case errors.Is(err, domainerr.ErrInvalidRequest):
		status = http.StatusBadRequest
		message = err.Error()
	case domainerr.IsTransactionStartError(err):
		status = http.StatusServiceUnavailable
		message = "Could not start coordinated transaction"
	case domainerr.IsCommitError(err):
		status = http.StatusServiceUnavailable
		message = "Could not commit coordinated work"
	case errors.Is(err, domainerr.ErrDatabaseConnection):
		status = http.StatusServiceUnavailable
		message = "Storage unavailable"
	}

	h.logger.Error("Order request failed", map[string]any{
		"path":   c.Request.URL.Path,
		"status": status,
		"error":  err.Error(),
	})

	c.JSON(status, dto.ErrorResponse{
		Code:    domainerr.ErrorCode(err),
		Message: message,
	})
}
