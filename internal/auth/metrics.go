// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for security token operations.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeExpired  = "expired"
	OutcomeInvalid  = "invalid"
	OutcomeMismatch = "mismatch"
	OutcomeError    = "error"
)

// TokenOperations counts security token operations by purpose and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var TokenOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keyward_security_token_operations_total",
		Help: "Total number of security token operations",
	},
	[]string{"operation", "purpose", "outcome"},
)

// AuthenticationAttempts counts credential checks by outcome.
var AuthenticationAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keyward_authentication_attempts_total",
		Help: "Total number of authentication attempts",
	},
	[]string{"outcome"},
)

// HashDuration observes key derivation latency.
var HashDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "keyward_password_hash_duration_seconds",
		Help:    "Password key derivation duration in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"operation"},
)

// SweptTokens counts rows removed by the token sweeper.
var SweptTokens = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "keyward_security_tokens_swept_total",
		Help: "Total number of expired or undecodable security tokens removed by the sweeper",
	},
)

// RegisterMetrics registers auth package metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(TokenOperations)
	reg.MustRegister(AuthenticationAttempts)
	reg.MustRegister(HashDuration)
	reg.MustRegister(SweptTokens)
}

func recordTokenOperation(operation string, purpose Purpose, outcome string) {
	TokenOperations.WithLabelValues(operation, string(purpose), outcome).Inc()
}

func observeHash(operation string, start time.Time) {
	HashDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
