// Package server runs the HTTP listener of the trigger engine
package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"trigger-engine/internal/common/logging"
)

// Timeouts of the underlying http.Server. WriteTimeout must exceed the webhook response timeout.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Read:     30 * time.Second,
		Write:    60 * time.Second,
		Idle:     120 * time.Second,
		Shutdown: 30 * time.Second,
	}
}

// Server represents an HTTP server
type Server struct {
	srv      *http.Server
	shutdown time.Duration
	logger   logging.Logger
}

// New creates a new server instance
func New(handler http.Handler, port string, timeouts Timeouts, logger logging.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadTimeout:       timeouts.Read,
			ReadHeaderTimeout: timeouts.Read,
			WriteTimeout:      timeouts.Write,
			IdleTimeout:       timeouts.Idle,
		},
		shutdown: timeouts.Shutdown,
		logger:   logging.OrGlobal(logger).WithFields(logging.Field{"component", "http_server"}),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.Field{"addr", ln.Addr().String()})
		if err := s.srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdown)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
