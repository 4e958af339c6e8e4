// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package authtest provides test collaborators for the auth package.
package authtest

import (
	"context"
	"net/url"
	"sync"
)

// Notification is one captured Enqueue call.
type Notification struct {
	Kind      string
	Recipient string
	Payload   map[string]any
}

// Token returns the token query parameter of the payload's link, or "".
func (n Notification) Token() string {
	link, _ := n.Payload["link"].(string)
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}

// RecordingNotifier captures notifications. When Err is set Enqueue fails
// with it and records nothing.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

// Enqueue records the notification.
func (n *RecordingNotifier) Enqueue(_ context.Context, kind, recipientEmail string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, Notification{Kind: kind, Recipient: recipientEmail, Payload: payload})
	return nil
}

// Sent returns a copy of every captured notification.
func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// Last returns the most recent notification of kind.
func (n *RecordingNotifier) Last(kind string) (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i], true
		}
	}
	return Notification{}, false
}
