package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexanderramin/todotree/internal/service"
	"github.com/gin-gonic/gin"
)

// Server exposes a TodoService over HTTP and streams its changes.
type Server struct {
	todos  service.TodoService
	hub    *Hub
	router *gin.Engine
	logger *slog.Logger
}

// NewServer wires routes. The service must publish to hub for the stream
// to carry anything.
func NewServer(todos service.TodoService, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		todos:  todos,
		hub:    hub,
		router: router,
		logger: logger,
	}

	api := router.Group("/api")
	{
		api.GET("/todos", s.handleList)
		api.POST("/todos", s.handleUpsert)
		api.GET("/todos/:id", s.handleGet)
		api.DELETE("/todos/:id", s.handleDelete)
		api.POST("/todos/:id/start", s.action(s.todos.Start))
		api.POST("/todos/:id/stop", s.action(s.todos.Stop))
		api.POST("/todos/:id/complete", s.action(s.todos.Complete))
		api.POST("/todos/:id/uncomplete", s.action(s.todos.UnComplete))
		api.POST("/todos/:id/children", s.action(s.todos.AddChild))
		api.POST("/todos/:id/next", s.action(s.todos.GoNext))
	}
	router.GET("/ws", s.handleWS)

	return s
}

// Handler returns the router, for httptest or a custom http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains connections and
// ends every change stream.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("hub listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down hub: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
