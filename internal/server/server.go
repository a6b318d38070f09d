// Package server exposes the column index and heading outline over HTTP and
// a WebSocket stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxPageBytes caps the article HTML accepted by POST /api/page.
const maxPageBytes = 8 << 20

// Server wires the hub into a gin router.
type Server struct {
	hub    *Hub
	router *gin.Engine
	srv    *http.Server
}

// New builds a Server for hub that will listen on addr.
func New(hub *Hub, addr string) *Server {
	s := &Server{hub: hub}
	s.router = s.routes()
	s.srv = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	return s
}

func (s *Server) Name() string { return "server" }

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.stream)

	api := r.Group("/api")
	api.GET("/columns/:owner/:column/articles", s.articles)
	api.POST("/outline", s.outline)
	api.POST("/page", s.page)
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully. It
// satisfies worker.Worker.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server: shutdown failed", "error", err)
		return err
	}
	slog.Info("server: stopped")
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("server: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
