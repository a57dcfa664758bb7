package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/TokenPulse/dashboard_core/internal/config"
	"github.com/TokenPulse/dashboard_core/pkg/logger"
)

// httpServer runs the REST and websocket surface as a managed service.
type httpServer struct {
	srv    *http.Server
	log    *logger.Logger
	cfg    config.ServerConfig
	failed chan error
}

func newHTTPServer(cfg config.ServerConfig, handler http.Handler, log *logger.Logger) *httpServer {
	return &httpServer{
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log:    log,
		cfg:    cfg,
		failed: make(chan error, 1),
	}
}

func (s *httpServer) Name() string { return "http-server" }

func (s *httpServer) Start(ctx context.Context) error {
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server failed")
			s.failed <- err
		}
	}()
	return nil
}

func (s *httpServer) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

// Failed reports an asynchronous listener failure, if any.
func (s *httpServer) Failed() <-chan error { return s.failed }
