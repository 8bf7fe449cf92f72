package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"leaveflow.org/internal/obs"
)

const serviceName = "leaveflow-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer exposes the standard gRPC health service so orchestrators can
// probe readiness without going through the HTTP listener.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	probe  readinessChecker
	done   chan struct{}
}

// NewGRPCServer builds a gRPC server with the health service registered.
func NewGRPCServer(rp readinessChecker) *GRPCServer {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCServer{
		srv:    srv,
		health: hs,
		probe:  rp,
		done:   make(chan struct{}),
	}
}

// Server returns the underlying grpc.Server for Serve/GracefulStop.
func (s *GRPCServer) Server() *grpc.Server { return s.srv }

// WatchReadiness polls the probe and keeps the health status current until
// the context is cancelled.
func (s *GRPCServer) WatchReadiness(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *GRPCServer) refresh(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.probe.Check(checkCtx); err != nil {
		obs.SetReady(false)
		s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	obs.SetReady(true)
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// Stop gracefully shuts the server down.
func (s *GRPCServer) Stop() {
	s.srv.GracefulStop()
	select {
	case <-s.done:
	case <-time.After(time.Second):
	}
}
