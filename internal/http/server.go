package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Server wraps the gin engine in a *http.Server so callers can drive
// graceful shutdown from a parent context instead of just blocking on
// ListenAndServe.
type Server struct {
	Engine *gin.Engine
	http   *http.Server
}

func NewServer(cfg RouterConfig) *Server {
	engine := NewRouter(cfg)
	return &Server{
		Engine: engine,
		http:   &http.Server{Handler: engine},
	}
}

// Run listens on address until Shutdown is called, returning
// http.ErrServerClosed in that case (treated as a clean exit by
// callers).
func (s *Server) Run(address string) error {
	s.http.Addr = address
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
