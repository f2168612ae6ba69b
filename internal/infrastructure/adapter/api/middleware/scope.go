package middleware

import (
	"context"
	"net/http"
	"time"

	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/uow"
	"github.com/gin-gonic/gin"
)

// UnitOfWork begins an ambient unit of work scope for every request and
// closes it when the handler returns. Read-only methods get a
// non-transactional scope; everything else is coordinated, and work is
// rolled back unless the handler completed the scope before responding.
func UnitOfWork(logger coreport.Logger, timeProvider coreport.TimeProvider, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := []uow.Option{
			uow.WithLogger(logger),
			uow.WithTimeProvider(timeProvider),
		}
		if timeout > 0 {
			opts = append(opts, uow.WithTimeout(timeout))
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			opts = append(opts, uow.NonTransactional())
		}

		ctx, scope := uow.Begin(c.Request.Context(), opts...)
		c.Request = c.Request.WithContext(ctx)

		defer func() {
			// Rollback and release must run even when the request context
			// already expired.
			if err := scope.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Error("Failed to close unit of work scope", map[string]any{
					"scope_id": scope.ID(),
					"path":     c.Request.URL.Path,
					"error":    err.Error(),
				})
			}
		}()

		c.Next()
	}
}
