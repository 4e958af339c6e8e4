// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package control

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealth(t *testing.T) (*HealthServer, healthpb.HealthClient) {
	t.Helper()
	s := NewHealthServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	errCh, err := s.Start("127.0.0.1:0", nil)
	require.NoError(t, err)

	conn, err := grpc.NewClient(s.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Stop(ctx))
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("health server did not exit")
		}
	})
	return s, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthServer_StatusTransitions(t *testing.T) {
	s, client := startHealth(t)

	for _, service := range []string{"", ServiceName} {
		assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, service), "service %q", service)
	}

	s.SetServing(true)
	for _, service := range []string{"", ServiceName} {
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, service), "service %q", service)
	}

	s.SetServing(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))
}

func TestHealthServer_UnknownService(t *testing.T) {
	_, client := startHealth(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "other"})
	assert.Error(t, err)
}

func TestHealthServer_DoubleStartFails(t *testing.T) {
	s, _ := startHealth(t)
	_, err := s.Start("127.0.0.1:0", nil)
	assert.ErrorContains(t, err, "already running")
}

func TestHealthServer_StopBeforeStart(t *testing.T) {
	s := NewHealthServer(nil)
	assert.NoError(t, s.Stop(context.Background()))
	assert.Empty(t, s.Addr())
}
