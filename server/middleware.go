package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		if s.svc.Metrics != nil {
			s.svc.Metrics.RequestDuration.
				WithLabelValues(method, route, strconv.Itoa(status)).
				Observe(duration.Seconds())
		}

		attrs := []any{
			"method", method,
			"path", path,
			"status", status,
			"duration", duration,
			"request_id", c.GetString(requestIDKey),
		}
		if duration > s.config.SlowRequest {
			s.logger.Warn("Slow request", attrs...)
			return
		}
		s.logger.Info("Request completed", attrs...)
	}
}
