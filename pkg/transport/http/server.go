// Package http provides the HTTP server lifecycle for tenantgate: startup,
// optional TLS, and graceful shutdown on SIGINT/SIGTERM.
package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/tenantgate/pkg/transport"
)

// Server wraps an http.Server and manages the full lifecycle including
// startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	config     ServerConfig
	logger     *slog.Logger
	extra      []transport.Middleware
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	TLSCertFile       string
	TLSKeyFile        string
	Logger            *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:              ":8080",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		Logger:            slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithTimeouts sets the read and write timeouts. Zero means no timeout.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.config.ReadTimeout = read
		s.config.WriteTimeout = write
	}
}

// WithTLS serves HTTPS using the given certificate and key files.
func WithTLS(certFile, keyFile string) ServerOption {
	return func(s *Server) {
		s.config.TLSCertFile = certFile
		s.config.TLSKeyFile = keyFile
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithMiddleware appends middleware applied inside the default stack
// (recovery, request ID, logging).
func WithMiddleware(mw ...transport.Middleware) ServerOption {
	return func(s *Server) { s.extra = append(s.extra, mw...) }
}

// NewServer creates a new server for the given handler.
// Default middleware (recovery, request ID, logging) is applied automatically.
func NewServer(handler http.Handler, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	defaultMW := []transport.Middleware{
		transport.Recovery(s.logger),
		transport.RequestID(),
		transport.Logging(s.logger),
	}

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           transport.Chain(append(defaultMW, s.extra...)...)(handler),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	return s
}

// Handler returns the fully wrapped handler. Used for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// waiting for in-flight requests to complete within the configured timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.serveWithContext(ctx, ln)
}

// ServeOn starts the server on the given listener and blocks until a
// shutdown signal is received or Shutdown is called.
func (s *Server) ServeOn(ln net.Listener) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.serveWithContext(ctx, ln)
}

func (s *Server) serveWithContext(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.Bool("tls", s.config.TLSCertFile != ""),
		)
		var err error
		if s.config.TLSCertFile != "" {
			err = s.httpServer.ServeTLS(ln, s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		// Closed by an explicit Shutdown call.
		return nil
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
