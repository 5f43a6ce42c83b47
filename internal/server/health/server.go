// Package health serves the standard gRPC health protocol on a side port.
// The serving status follows a periodic readiness probe of the record store.
package health

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service key reported next to the overall ("") status.
const ServiceName = "photodrop.Submissions"

// Probe reports whether the backing store is usable.
type Probe func(ctx context.Context) error

type Server struct {
	address  string
	probe    Probe
	interval time.Duration
	logger   logging.Logger
	health   *health.Server
}

func NewServer(address string, probe Probe, interval time.Duration, l logging.Logger) *Server {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Server{
		address:  address,
		probe:    probe,
		interval: interval,
		logger:   l.With("module", "health"),
		health:   health.NewServer(),
	}
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts health checks on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.check(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping health server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting health server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Server) check(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.probe(probeCtx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "store probe failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
