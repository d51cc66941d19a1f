package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

type Config struct {
	Addr      string
	AuthToken string
	RateLimit string
}

// Server exposes one Runner over http on a loopback address.
type Server struct {
	config  Config
	server  *http.Server
	handler *Handler
}

func NewServer(config Config, runner Runner, resolve ResolveFunc) (*Server, error) {
	h := NewHandler(runner, resolve)
	routes, err := SetupRoutes(h, RouteConfig{AuthToken: config.AuthToken, RateLimit: config.RateLimit})
	if err != nil {
		return nil, fmt.Errorf("controlplane: routes: %w", err)
	}

	return &Server{
		config:  config,
		handler: h,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           routes,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// no WriteTimeout, event streams stay open for the whole run
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
	}, nil
}

// Start serves until ctx is done or Stop is called. Runs started over http
// are bound to ctx.
func (s *Server) Start(ctx context.Context) error {
	s.handler.bind(ctx)

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("controlplane: listen: %w", err)
	}
	slog.Info("control plane start", "addr", fmt.Sprintf("http://%s", ln.Addr()), "auth", s.config.AuthToken != "")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(shutdownCtx)
	}()

	err = s.server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("controlplane: serve: %w", err)
	}
	wg.Wait()
	return nil
}

// Stop shuts the listener down and waits for background runs to return.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	err := s.server.Shutdown(ctx)
	s.handler.wait()
	return err
}
