package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
)

type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

type Server struct {
	log  *logger.Logger
	srv  *http.Server
	stop time.Duration
}

func NewServer(log *logger.Logger, cfg ServerConfig, router RouterConfig) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	return &Server{
		log:  log.With("component", "HTTPServer"),
		stop: cfg.ShutdownTimeout,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(router),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			// Downloads and SSE streams are unbounded.
			WriteTimeout: 0,
		},
	}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// OnShutdown runs fn when shutdown begins, before connections drain.
func (s *Server) OnShutdown(fn func()) { s.srv.RegisterOnShutdown(fn) }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.stop)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("HTTP server shutdown", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
