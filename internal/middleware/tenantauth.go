package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tenantwise/dbgovernor/internal/service"
)

// Identifies the tenant behind a request by API key. All governed
// traffic must be attributable, so requests without a valid key are
// rejected before any admission check runs.
func TenantAuth(tenants *service.TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("X-API-Key"))

		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "API key required",
			})
			c.Abort()
			return
		}

		tenant, err := tenants.Authenticate(c.Request.Context(), key)
		if err != nil || tenant == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			c.Abort()
			return
		}

		c.Set("tenant", tenant)

		go tenants.UpdateLastSeen(context.Background(), tenant.ID)

		c.Next()
	}
}
