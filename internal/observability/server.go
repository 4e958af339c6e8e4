// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package observability serves Prometheus metrics and the HTTP liveness and
// readiness probes for keyward.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// Probe paths.
const (
	MetricsPath   = "/metrics"
	LivenessPath  = "/healthz/liveness"
	ReadinessPath = "/healthz/readiness"
)

// DefaultCheckTimeout bounds one readiness evaluation.
const DefaultCheckTimeout = 2 * time.Second

// ReadinessChecker reports whether keyward has finished starting and is not
// shutting down.
type ReadinessChecker func() bool

// Check probes one dependency, such as the database pool.
type Check func(ctx context.Context) error

// Report is the readiness response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Report statuses.
const (
	StatusReady    = "ready"
	StatusNotReady = "not ready"
	checkOK        = "ok"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.checkTimeout = d
		}
	}
}

// Server exposes a private Prometheus registry and the probe endpoints.
type Server struct {
	addr         string
	registry     *prometheus.Registry
	ready        ReadinessChecker
	logger       *slog.Logger
	checkTimeout time.Duration

	checksMu sync.RWMutex
	checks   map[string]Check

	running  atomic.Bool
	listener net.Listener
	srv      *http.Server
}

// NewServer returns a server that will listen on addr ("host:port"; port 0
// picks a free one). ready may be nil, meaning always ready.
func NewServer(addr string, ready ReadinessChecker, opts ...Option) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)

	s := &Server{
		addr:         addr,
		registry:     registry,
		ready:        ready,
		logger:       slog.Default(),
		checkTimeout: DefaultCheckTimeout,
		checks:       make(map[string]Check),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry served on MetricsPath.
func (s *Server) Registry() prometheus.Registerer {
	return s.registry
}

// AddCheck registers a dependency probed on every readiness request. A
// second check under the same name replaces the first.
func (s *Server) AddCheck(name string, check Check) {
	s.checksMu.Lock()
	defer s.checksMu.Unlock()
	s.checks[name] = check
}

// Start listens and serves in the background. The returned channel carries a
// serve failure and is closed once serving ends.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").Errorf("observability server already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = ln
	srv := &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	s.srv = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		err := srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		s.logger.Error("observability server error", "addr", ln.Addr().String(), "error", err)
		errCh <- err
	}()

	s.logger.Info("observability server started", "addr", ln.Addr().String())
	return errCh, nil
}

// Stop shuts the server down, waiting for in-flight scrapes until ctx ends.
// Stopping a server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.Load() {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return oops.Code("OBSERVABILITY_SHUTDOWN_FAILED").With("addr", s.Addr()).Wrap(err)
	}
	s.running.Store(false)
	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc(LivenessPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc(ReadinessPath, s.handleReadiness)
	return mux
}

// handleReadiness answers 503 before startup completes, during shutdown and
// while any registered check fails. Dependencies are not probed until the
// service itself reports ready.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := Report{Status: StatusReady}
	if s.ready != nil && !s.ready() {
		report.Status = StatusNotReady
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), s.checkTimeout)
		defer cancel()
		report.Checks = s.runChecks(ctx)
		for _, result := range report.Checks {
			if result != checkOK {
				report.Status = StatusNotReady
			}
		}
	}

	status := http.StatusOK
	if report.Status != StatusReady {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}

func (s *Server) runChecks(ctx context.Context) map[string]string {
	s.checksMu.RLock()
	checks := make(map[string]Check, len(s.checks))
	for name, c := range s.checks {
		checks[name] = c
	}
	s.checksMu.RUnlock()
	if len(checks) == 0 {
		return nil
	}

	results := make(map[string]string, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := checkOK
			if err := check(ctx); err != nil {
				result = err.Error()
				s.logger.Warn("readiness check failed", "check", name, "error", err)
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}
