// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package notify

import (
	"time"

	"github.com/google/uuid"
)

// Message is the JSON body published for each notification.
type Message struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Recipient string         `json:"recipient"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func newMessage(kind, recipient string, payload map[string]any, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Recipient: recipient,
		Payload:   payload,
		CreatedAt: now.UTC(),
	}
}

// RoutingKey returns the topic routing key for kind.
func RoutingKey(kind string) string {
	return "notification." + kind
}
