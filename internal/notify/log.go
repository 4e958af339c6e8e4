// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
)

// LogNotifier records notifications in the log instead of delivering them.
// The payload is not logged. When an output writer is set, each message is
// also written to it as one JSON line, which lets an operator running the
// CLI pick up the link.
type LogNotifier struct {
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	out io.Writer
}

// LogOption configures a LogNotifier.
type LogOption func(*LogNotifier)

// WithOutput writes every message as a JSON line to w.
func WithOutput(w io.Writer) LogOption {
	return func(n *LogNotifier) {
		n.out = w
	}
}

// NewLogNotifier creates a LogNotifier. logger may be nil.
func NewLogNotifier(logger *slog.Logger, opts ...LogOption) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &LogNotifier{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enqueue logs the notification and writes it to the output, if any.
func (n *LogNotifier) Enqueue(ctx context.Context, kind, recipientEmail string, payload map[string]any) error {
	msg := newMessage(kind, recipientEmail, payload, n.now())

	attrs := []any{"kind", kind, "recipient", recipientEmail, "message_id", msg.ID}
	if userID, ok := payload["user_id"]; ok {
		attrs = append(attrs, "user_id", userID)
	}
	n.logger.InfoContext(ctx, "notification not delivered, no broker configured", attrs...)
	recordOutcome(kind, OutcomeLogged)

	if n.out == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := json.NewEncoder(n.out).Encode(msg); err != nil {
		return oops.Code("NOTIFY_WRITE_FAILED").With("kind", kind).Wrap(err)
	}
	return nil
}
