package httpapi

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxLogger  = "capsule_logger"
	ctxActorID = "capsule_actor"
	ctxOrgID   = "capsule_org"
)

// requestContext assigns the request id and stores a request-scoped logger
// and the caller identity in the gin context.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)

		actor := c.GetHeader(HeaderUserID)
		org := c.GetHeader(HeaderOrgID)
		c.Set(ctxActorID, actor)
		c.Set(ctxOrgID, org)
		c.Set(ctxLogger, s.logger.With("request_id", requestID, "actor", actor))
		c.Next()
	}
}

// accessLog logs every request and feeds the request duration histogram.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.c.Metrics.ObserveRequest(c.Request.Method, route, strconv.Itoa(status), elapsed)

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		logger(c).Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds())
	}
}

func logger(c *gin.Context) *slog.Logger {
	if l, ok := c.Get(ctxLogger); ok {
		if lg, ok := l.(*slog.Logger); ok {
			return lg
		}
	}
	return slog.Default()
}

func actorID(c *gin.Context) string {
	return c.GetString(ctxActorID)
}

func orgID(c *gin.Context) string {
	return c.GetString(ctxOrgID)
}
