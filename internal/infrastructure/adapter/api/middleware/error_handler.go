package middleware

import (
	"net/http"

	domainerr "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	coreport "github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/api/dto"
	"github.com/gin-gonic/gin"
)

// ErrorHandler middleware recovers from panics and returns appropriate error responses
func ErrorHandler(logger coreport.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				// A panicking handler never completed its scope, so the
				// deferred close in the scope middleware rolls everything
				// back.
				logger.Error("Panic recovered in API request", map[string]any{
					"error":      err,
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
					"client_ip":  c.ClientIP(),
					"request_id": c.GetHeader("X-Request-ID"),
				})

				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
					Code:    domainerr.ErrorCode(domainerr.ErrInternalServer),
					Message: "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
