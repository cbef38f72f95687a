// Package http is the worker's HTTP surface: a chi server, a Router seam for
// modules, and JSON envelope helpers
package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"signalroom/internal/platform/config"
	"signalroom/internal/platform/logger"
	"signalroom/internal/platform/net/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server wraps chi and a stdlib http.Server
type Server struct {
	addr string
	mux  *chi.Mux
	srv  *stdhttp.Server
}

// NewServer builds the worker server with the standard middleware stack.
// WORKER_ADDR sets the listen address (default ":4000"), WORKER_CORS_ORIGINS the allowed origins
func NewServer(cfg config.Conf, opts ...func(*chi.Mux)) *Server {
	addr := cfg.MayString("ADDR", ":4000")
	m := chi.NewRouter()
	m.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.RecoverJSON,
		middleware.AccessLog(middleware.AccessLogOptions{Slow: cfg.MayDuration("SLOW_REQUEST", time.Second)}),
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.MayCSV("CORS_ORIGINS", []string{"*"}),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}),
	)
	for _, o := range opts {
		o(m)
	}
	return &Server{
		addr: addr,
		mux:  m,
		srv: &stdhttp.Server{
			Addr:              addr,
			Handler:           m,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Router returns a Router facade over the mux
func (s *Server) Router() Router { return AdaptChi(s.mux) }

// Handler exposes the mux for tests
func (s *Server) Handler() stdhttp.Handler { return s.mux }

// Addr returns the listening address
func (s *Server) Addr() string { return s.addr }

// Run serves until ctx is done, then drains for up to 10s
func (s *Server) Run(ctx context.Context) error {
	log := logger.Named("http")
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("http listening")
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, stdhttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	}
}
