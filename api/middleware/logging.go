package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-chunker/pkg/logger"
)

// RequestLogger logs one line per request. Health and metrics probes are
// logged at debug.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Int("bytes", c.Writer.Size()),
			logger.Duration("took", time.Since(start)),
		}
		switch p := c.Request.URL.Path; {
		case p == "/healthz" || p == "/metrics":
			log.Debug("Request", fields...)
		case c.Writer.Status() >= 500:
			log.Error("Request", fields...)
		default:
			log.Info("Request", fields...)
		}
	}
}
