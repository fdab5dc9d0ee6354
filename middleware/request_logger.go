package middleware

import (
	"net/url"
	"time"

	"teamdrive/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogger writes per-request logs at debug level.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !logger.IsDebugEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		rawQuery := c.Request.URL.RawQuery

		c.Next()

		if rawQuery != "" {
			path = path + "?" + redactQuery(rawQuery)
		}

		logger.Debug("request",
			"method", c.Request.Method,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client", c.ClientIP(),
			"path", path,
			"user", c.GetUint("user_id"),
		)
	}
}

// redactQuery hides commit signatures so logged URLs cannot be replayed.
func redactQuery(raw string) string {
	values, err := url.ParseQuery(raw)
	if err != nil || !values.Has("signature") {
		return raw
	}
	values.Set("signature", "REDACTED")
	return values.Encode()
}
