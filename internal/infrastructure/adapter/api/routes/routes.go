package routes

import (
	"time"

	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/api/handler"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all the routes for the API
func SetupRoutes(
	router *gin.Engine,
	orderHandler *handler.OrderHandler,
) {
	// Order routes
	orderRoutes := router.Group("/orders")
	{
		// POST /orders
		orderRoutes.POST("", orderHandler.CreateOrder)

		// GET /orders/:orderId
		orderRoutes.GET("/:orderId", orderHandler.GetOrder)

		// GET /orders/:orderId/audit
		orderRoutes.GET("/:orderId/audit", orderHandler.GetOrderAudit)
	}
}

// SetupMiddlewares configures global middlewares for the API
func SetupMiddlewares(
	router *gin.Engine,
	logger coreport.Logger,
	timeProvider coreport.TimeProvider,
	scopeTimeout time.Duration,
) {
	// Apply middlewares in the correct order
	router.Use(middleware.ErrorHandler(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.UnitOfWork(logger, timeProvider, scopeTimeout))
}
