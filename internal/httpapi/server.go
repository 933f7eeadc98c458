// Package httpapi exposes the use cases over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runoshun/capsule/internal/app"
	"github.com/runoshun/capsule/internal/domain"
)

// Header names carrying the caller identity. Authentication happens upstream.
const (
	HeaderUserID    = "X-User-ID"
	HeaderOrgID     = "X-Org-ID"
	HeaderRequestID = "X-Request-ID"
)

// shutdownTimeout bounds how long Run waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// Server is the capsule HTTP server.
type Server struct {
	c      *app.Container
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates the router and registers every route.
func NewServer(c *app.Container) *Server {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	s := &Server{
		c:      c,
		router: router,
		logger: logger,
	}
	router.Use(gin.Recovery(), s.requestContext(), s.accessLog())

	router.GET("/health", s.handleHealth)
	if c.AppConfig == nil || c.AppConfig.Server.Metrics {
		router.GET("/metrics", gin.WrapH(c.Metrics.Handler()))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/tasks", s.handleCreateTask)
		v1.GET("/tasks", s.handleListTasks)
		v1.GET("/tasks/:id", s.handleShowTask)
		v1.PATCH("/tasks/:id", s.handleEditTask)
		v1.DELETE("/tasks/:id", s.handleDeleteTask)
		v1.POST("/tasks/:id/complete", s.handleCompleteTask)
		v1.GET("/tasks/:id/completion", s.handleCheckCompletion)
		v1.POST("/tasks/:id/comments", s.handleAddComment)
		v1.GET("/tasks/:id/comments", s.handleCommentTree)
		v1.GET("/tasks/:id/history", s.handleHistory)
		v1.POST("/tasks/:id/attachments", s.handleAttachFile)
	}
	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	err := s.c.Tasks.View(c.Request.Context(), func(domain.TaskTx) error { return nil })
	if err != nil {
		logger(c).Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// retryAttempts is the number of runs a mutation gets on concurrent modification.
func (s *Server) retryAttempts() int {
	if s.c.AppConfig == nil || s.c.AppConfig.Server.RetryAttempts < 1 {
		return domain.DefaultRetryAttempts
	}
	return s.c.AppConfig.Server.RetryAttempts
}
