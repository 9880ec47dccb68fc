package middleware

import (
	"log/slog"
	"net/http"

	"github.com/caseforge/docstream/common"
	"github.com/gin-gonic/gin"
)

// ErrorHandler converts errors collected on the gin context into JSON
// responses. Typed APIErrors keep their status; everything else is a 500.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		if apiErr, ok := err.(common.APIError); ok {
			response := gin.H{"error": apiErr.Message}
			if apiErr.Fields != nil {
				response["fields"] = apiErr.Fields
			}
			c.JSON(apiErr.Status, response)
			return
		}

		logger.Error("unhandled request error",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
