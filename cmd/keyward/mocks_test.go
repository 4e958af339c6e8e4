// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/keyward/keyward/internal/notify"
	"github.com/keyward/keyward/internal/observability"
	"github.com/keyward/keyward/internal/store"
)

type mockObservabilityServer struct {
	ready    observability.ReadinessChecker
	registry *prometheus.Registry
	startErr error
	errCh    chan error

	mu      sync.Mutex
	stopped bool
	checks  []string
}

func newMockObservabilityServer(ready observability.ReadinessChecker) *mockObservabilityServer {
	return &mockObservabilityServer{
		ready:    ready,
		registry: prometheus.NewRegistry(),
		errCh:    make(chan error, 1),
	}
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	return m.errCh, nil
}

func (m *mockObservabilityServer) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *mockObservabilityServer) Addr() string                    { return "127.0.0.1:0" }
func (m *mockObservabilityServer) Registry() prometheus.Registerer { return m.registry }

func (m *mockObservabilityServer) AddCheck(name string, _ observability.Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, name)
}

func (m *mockObservabilityServer) checkNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.checks...)
}

func (m *mockObservabilityServer) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type mockHealthServer struct {
	startErr error
	errCh    chan error
	serving  chan bool

	mu      sync.Mutex
	addr    string
	tls     *cryptotls.Config
	stopped bool
}

func newMockHealthServer() *mockHealthServer {
	return &mockHealthServer{errCh: make(chan error, 1), serving: make(chan bool, 4)}
}

func (m *mockHealthServer) Start(addr string, tlsConfig *cryptotls.Config) (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.mu.Lock()
	m.addr = addr
	m.tls = tlsConfig
	m.mu.Unlock()
	return m.errCh, nil
}

func (m *mockHealthServer) SetServing(serving bool) {
	m.serving <- serving
}

func (m *mockHealthServer) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *mockHealthServer) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type mockMigrator struct {
	upErr  error
	status store.Status

	upCalls    int
	downCalls  int
	steps      []int
	forced     []int
	closeCalls int
}

func (m *mockMigrator) Up() error {
	m.upCalls++
	return m.upErr
}

func (m *mockMigrator) Down() error {
	m.downCalls++
	return nil
}

func (m *mockMigrator) Steps(n int) error {
	m.steps = append(m.steps, n)
	return nil
}

func (m *mockMigrator) Force(version int) error {
	m.forced = append(m.forced, version)
	return nil
}

func (m *mockMigrator) Status() (store.Status, error) { return m.status, nil }

func (m *mockMigrator) Close() error {
	m.closeCalls++
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []amqp.Publishing
	keys []string
}

func (p *recordingPublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) published() ([]amqp.Publishing, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]amqp.Publishing(nil), p.sent...), append([]string(nil), p.keys...)
}

type fakeBroker struct {
	pub    *recordingPublisher
	closed bool
}

func (b *fakeBroker) Channel() notify.Publisher { return b.pub }

func (b *fakeBroker) Close() error {
	b.closed = true
	return nil
}
