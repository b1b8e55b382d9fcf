package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/miradorstack/mirador-noc/internal/config"
)

// Server hosts the NOC agent over gRPC together with the health and
// reflection services.
type Server struct {
	logger   *slog.Logger
	grpc     *grpc.Server
	listener net.Listener
	health   *health.Server
	drainFor time.Duration
}

// NewServer binds cfg.Address and registers service. Unary and stream calls
// are instrumented with go-grpc-prometheus.
func NewServer(logger *slog.Logger, cfg config.ServerConfig, service NOCAgentServer, opts ...grpc.ServerOption) (*Server, error) {
	if service == nil {
		return nil, errors.New("noc agent service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	gs := grpc.NewServer(append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}, opts...)...)

	RegisterNOCAgentServer(gs, service)
	grpc_prometheus.Register(gs)

	hs := health.NewServer()
	for _, name := range []string{"", NOCAgentServiceDesc.ServiceName} {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(gs, hs)
	if cfg.Reflection {
		reflection.Register(gs)
	}

	return &Server{
		logger:   logger.With(slog.String("service", NOCAgentServiceDesc.ServiceName)),
		grpc:     gs,
		listener: lis,
		health:   hs,
		drainFor: cfg.GracefulTimeout,
	}, nil
}

// Run serves until ctx is cancelled and then drains in-flight calls. A serve
// failure before cancellation is returned.
func (s *Server) Run(ctx context.Context) error {
	if s == nil || s.grpc == nil || s.listener == nil {
		return errors.New("server not initialised")
	}
	served := make(chan error, 1)
	go func() { served <- s.grpc.Serve(s.listener) }()
	s.logger.Info("noc agent serving", slog.String("address", s.Address()))

	select {
	case err := <-served:
		s.health.Shutdown()
		if err != nil {
			return fmt.Errorf("serve %s: %w", s.Address(), err)
		}
		return nil
	case <-ctx.Done():
	}
	s.drain()
	<-served
	return nil
}

// drain flips health to NOT_SERVING and stops gracefully, forcing the stop
// once drainFor has elapsed.
func (s *Server) drain() {
	s.health.Shutdown()
	if s.drainFor <= 0 {
		s.grpc.Stop()
		return
	}
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	timer := time.NewTimer(s.drainFor)
	defer timer.Stop()
	select {
	case <-stopped:
		s.logger.Info("noc agent drained")
	case <-timer.C:
		s.logger.Warn("drain timed out, closing open calls", slog.Duration("timeout", s.drainFor))
		s.grpc.Stop()
		<-stopped
	}
}

// Address is the bound listener address.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
