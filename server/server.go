// Package server provides HTTP server functionality using Echo framework.
// It wires request ids, request logging, panic recovery and JSON-API error
// responses, and binds to a TCP port or a unix socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-ignition/config"
	"github.com/gaborage/go-ignition/debug"
	"github.com/gaborage/go-ignition/logger"
)

// ErrInvalidPort is returned by Listen for negative port numbers.
var ErrInvalidPort = errors.New("invalid port")

// Server represents an HTTP server instance with Echo framework.
type Server struct {
	echo   *echo.Echo
	cfg    config.Provider
	logger logger.Logger

	mu       sync.Mutex
	listener net.Listener
	bind     string
}

// New creates a server with middlewares, validator and error handler installed.
// Routes are registered through Echo(). cfg must not be nil; log may be.
func New(cfg config.Provider, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = errorHandler

	SetupMiddlewares(e, log, cfg)

	return &Server{
		echo:   e,
		cfg:    cfg,
		logger: log,
	}
}

// Echo returns the underlying Echo instance for route registration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Listen binds the configured port. A numeric port listens on TCP, anything
// else is treated as a unix socket path. It is called by Start when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	port := s.cfg.GetString(KeyPort, DefaultPort)
	network, address, bind, err := normalizePort(s.cfg.GetString(KeyHost), port)
	if err != nil {
		return err
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return listenError(bind, err)
	}
	if network == "tcp" {
		bind = "Port " + strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	}
	s.listener = ln
	s.bind = bind
	return nil
}

// Start listens (if Listen was not called) and serves until Shutdown.
// A graceful shutdown returns nil.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	s.echo.Listener = s.listener
	bind := s.bind
	s.mu.Unlock()

	// echo.Shutdown stops e.Server, so that is the server we configure and run.
	srv := s.echo.Server
	srv.ReadTimeout = s.cfg.GetDuration(KeyReadTimeout, DefaultReadTimeout)
	srv.WriteTimeout = s.cfg.GetDuration(KeyWriteTimeout, DefaultWriteTimeout)
	srv.IdleTimeout = s.cfg.GetDuration(KeyIdleTimeout, DefaultIdleTimeout)

	debug.New("server").Debug().Str("bind", bind).Msg("Server ready")
	if s.logger != nil {
		s.logger.Info("Listening on " + bind)
	}

	if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the HTTP server with the given context.
// It waits for existing connections to finish within the context timeout.
// A listener bound by Listen but never served is closed as well.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil && s.echo.Listener == nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

// normalizePort resolves the listen network and address for a configured port.
func normalizePort(host, port string) (network, address, bind string, err error) {
	n, convErr := strconv.Atoi(port)
	if convErr != nil {
		return "unix", port, "Pipe " + port, nil
	}
	if n < 0 {
		return "", "", "", fmt.Errorf("%w: %d", ErrInvalidPort, n)
	}
	return "tcp", net.JoinHostPort(host, strconv.Itoa(n)), "Port " + strconv.Itoa(n), nil
}

func listenError(bind string, err error) error {
	switch {
	case errors.Is(err, syscall.EACCES):
		return fmt.Errorf("%s requires elevated privileges: %w", bind, err)
	case errors.Is(err, syscall.EADDRINUSE):
		return fmt.Errorf("%s is already in use: %w", bind, err)
	default:
		return fmt.Errorf("failed to listen on %s: %w", bind, err)
	}
}
