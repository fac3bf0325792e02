package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/tenantgate/pkg/logger"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Server runs an http.Server until its context is cancelled, then shuts it
// down gracefully and runs the shutdown hooks.
type Server struct {
	addr              string
	readHeaderTimeout time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	shutdownTimeout   time.Duration
	logger            *slog.Logger
	hooks             []hook

	mu      sync.Mutex
	srv     *http.Server
	running bool
}

// New creates a server listening on :8080 by default.
func New(opts ...Option) *Server {
	s := &Server{
		addr:              ":8080",
		readHeaderTimeout: 5 * time.Second,
		shutdownTimeout:   10 * time.Second,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("httpserver"))
	return s
}

// Run listens on the configured address and serves handler until ctx is
// cancelled or the listener fails. Use signal.NotifyContext to stop on
// SIGINT or SIGTERM.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Join(ErrStart, err)
	}
	return s.Serve(ctx, l, handler)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, l net.Listener, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = l.Close()
		return ErrAlreadyRunning
	}
	s.running = true
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.readHeaderTimeout,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.srv = srv
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "http server started", slog.String("addr", l.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			shutdownErr := s.shutdown(context.WithoutCancel(ctx))
			return errors.Join(ErrStart, err, shutdownErr)
		}
		return nil
	case <-ctx.Done():
	}

	err := s.shutdown(context.WithoutCancel(ctx))
	<-errCh
	return err
}

func (s *Server) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	start := time.Now()
	var errs []error
	if err := s.srv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	for _, h := range s.hooks {
		if err := h.fn(ctx); err != nil {
			s.logger.ErrorContext(ctx, "shutdown hook failed", slog.String("hook", h.name), logger.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrShutdown}, errs...)...)
	}
	s.logger.InfoContext(ctx, "http server stopped", logger.Duration(time.Since(start)))
	return nil
}
