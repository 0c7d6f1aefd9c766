package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frostwillmott/applybot/pkg/metrics"
)

// Metrics records request duration by method, route and status.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
