// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package control provides the gRPC health endpoint used by orchestrators to
// decide whether keyward is serving.
package control

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name keyward reports under, next to the
// overall "" service.
const ServiceName = "keyward.v1.Auth"

// HealthServer runs the standard gRPC health service. It starts NOT_SERVING
// and reports SERVING once SetServing(true) is called.
type HealthServer struct {
	health *health.Server
	logger *slog.Logger

	mu         sync.Mutex
	listener   net.Listener
	grpcServer *grpc.Server
}

// NewHealthServer creates a health server. logger may be nil.
func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{health: h, logger: logger}
}

// SetServing flips the reported status of both services.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Start listens on addr. tlsConfig may be nil for a plaintext listener.
// The returned channel receives the server's exit error (or nil on graceful
// stop) exactly once.
func (s *HealthServer) Start(addr string, tlsConfig *cryptotls.Config) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Prevent double-start which would leak the first listener
	if s.listener != nil {
		return nil, oops.Errorf("health server is already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.Code("HEALTH_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	var opts []grpc.ServerOption
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, s.health)
	s.grpcServer = srv

	errCh := make(chan error, 1)
	go func() {
		err := srv.Serve(listener)
		if err != nil {
			s.logger.Error("health gRPC server error", "error", err)
		}
		errCh <- err
	}()

	s.logger.Info("health server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Addr returns the listening address, or "" before Start.
func (s *HealthServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop marks every service NOT_SERVING and gracefully stops the server. If
// ctx ends first the server is stopped forcibly.
func (s *HealthServer) Stop(ctx context.Context) error {
	s.health.Shutdown()

	s.mu.Lock()
	srv := s.grpcServer
	s.grpcServer = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		srv.Stop()
		<-done
		return oops.Code("HEALTH_STOP_TIMEOUT").Wrap(ctx.Err())
	}
}
