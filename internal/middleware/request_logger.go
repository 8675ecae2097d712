package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/chronolens/chronolens/pkg/logger"
)

// RequestLogger logs each request with method, path, status, and latency
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})

		if len(c.Errors) > 0 {
			entry.Errorf("request failed: %s", c.Errors.String())
			return
		}
		if c.Writer.Status() >= 500 {
			entry.Errorf("request completed")
			return
		}
		entry.Infof("request completed")
	}
}
