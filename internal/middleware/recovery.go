package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// A panic anywhere in the admission chain or a handler must never
// take the governor down: every other tenant's traffic depends on it.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[%s] PANIC on %s %s: %v\n%s",
					c.GetString("request_id"), c.Request.Method, c.Request.URL.Path, err, debug.Stack())

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
