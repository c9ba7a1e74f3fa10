package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const stopWaitTime = 5 * time.Second

type Server interface {
	Start() error
	Stop() error
}

type Config struct {
	Host     string `env:"HOST"      envDefault:"localhost"`
	Port     string `env:"PORT"      envDefault:"9090"`
	CertFile string `env:"SERVER_CERT" envDefault:""`
	KeyFile  string `env:"SERVER_KEY"  envDefault:""`
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

type httpServer struct {
	ctx    context.Context
	cancel context.CancelFunc
	name   string
	config Config
	logger *slog.Logger
	server *http.Server
}

var _ Server = (*httpServer)(nil)

func NewHTTPServer(ctx context.Context, cancel context.CancelFunc, name string, config Config, handler http.Handler, logger *slog.Logger) Server {
	return &httpServer{
		ctx:    ctx,
		cancel: cancel,
		name:   name,
		config: config,
		logger: logger,
		server: &http.Server{
			Addr:              config.Address(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start blocks until the listener fails or ctx is canceled, in which case
// the server is shut down gracefully.
func (s *httpServer) Start() error {
	errCh := make(chan error, 1)
	protocol := "http"

	switch {
	case s.config.CertFile != "" || s.config.KeyFile != "":
		protocol = "https"
		s.logger.Info(fmt.Sprintf("%s service %s server listening at %s with TLS cert %s and key %s", s.name, protocol, s.server.Addr, s.config.CertFile, s.config.KeyFile))
		go func() {
			errCh <- s.server.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		}()
	default:
		s.logger.Info(fmt.Sprintf("%s service %s server listening at %s without TLS", s.name, protocol, s.server.Addr))
		go func() {
			errCh <- s.server.ListenAndServe()
		}()
	}

	select {
	case <-s.ctx.Done():
		return s.Stop()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

func (s *httpServer) Stop() error {
	defer s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), stopWaitTime)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error(fmt.Sprintf("%s service http server error occurred during shutdown at %s: %s", s.name, s.server.Addr, err))

		return fmt.Errorf("%s service http server error occurred during shutdown at %s: %w", s.name, s.server.Addr, err)
	}
	s.logger.Info(fmt.Sprintf("%s http service shutdown of http at %s", s.name, s.server.Addr))

	return nil
}

// StopSignalHandler stops every server on SIGINT or SIGTERM and returns
// when ctx is done.
func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, svcName string, servers ...Server) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		defer cancel()
		var errs []error
		for _, s := range servers {
			if err := s.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		logger.Info(fmt.Sprintf("%s service shutdown by signal: %s", svcName, sig))

		return errors.Join(errs...)
	case <-ctx.Done():
		return nil
	}
}
