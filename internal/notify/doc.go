// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package notify dispatches account notifications produced by the auth
// workflows.
//
// AMQPNotifier queues messages in memory and publishes them to a durable
// RabbitMQ topic exchange from a single worker, retrying each publish with
// exponential backoff. LogNotifier is the fallback used when no broker is
// configured. Both implement auth.Notifier and never block on delivery.
package notify
