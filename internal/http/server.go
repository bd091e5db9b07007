package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/dropDatabas3/fedgate/internal/observability/logger"
)

// Server wraps the stdlib server with bounded timeouts and a graceful
// shutdown hook.
type Server struct {
	srv *stdhttp.Server
}

func NewServer(addr string, handler stdhttp.Handler) *Server {
	return &Server{
		srv: &stdhttp.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start blocks serving requests until the listener closes.
func (s *Server) Start() error {
	logger.Named("http").Info("listening", logger.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if err == stdhttp.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
