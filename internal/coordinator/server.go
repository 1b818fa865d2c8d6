// Package coordinator is a development stand-in for the remote coordinator.
// It keeps everything in memory and serves the endpoints the agent client
// calls, plus read-only listings for inspection.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with all coordinator routes.
func NewRouter(h *Handler, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger))

	router.GET("/health", h.Health)
	router.GET("/agents", h.ListAgents)
	router.GET("/infections", h.ListInfections)
	router.GET("/infections/:id", h.GetInfection)

	router.POST("/register-agent", h.RegisterAgent)

	protected := router.Group("/")
	if h.requireKey {
		protected.Use(AuthMiddleware(h.registry))
	}
	protected.POST("/inject-infection", h.InjectInfection)
	protected.POST("/respond-to-infection", h.RespondToInfection)

	return router
}

// Server runs the coordinator router on an http.Server.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// New creates a coordinator server listening on addr.
func New(addr string, registry *Registry, requireKey bool, logger *slog.Logger) *Server {
	h := NewHandler(registry, requireKey, logger)

	s := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h, logger),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{http: s, logger: logger}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("coordinator listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
