package middleware

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tenantwise/dbgovernor/internal/models"
)

// Request log line, tagged with the tenant once the auth middleware
// has identified one. Admin and unauthenticated traffic logs without
// the tenant suffix.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		line := fmt.Sprintf("[%s] %s %s - %d - %v - %s",
			c.GetString("request_id"),
			method,
			path,
			c.Writer.Status(),
			time.Since(start),
			c.ClientIP(),
		)
		if value, ok := c.Get("tenant"); ok {
			if tenant, ok := value.(*models.Tenant); ok {
				line += " - tenant=" + tenant.ID.String()
			}
		}

		log.Print(line)
	}
}
