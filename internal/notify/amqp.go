// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/keyward/keyward/pkg/errutil"
)

// Defaults for AMQPNotifier options.
const (
	DefaultExchange = "keyward.notifications"
	DefaultAttempts = 3
	DefaultBackoff  = time.Second
	DefaultBuffer   = 256
	dialTimeout     = 10 * time.Second
)

// Publisher publishes a single AMQP message. *amqp.Channel satisfies it.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Connection is a broker connection with one channel and a declared exchange.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial connects to the broker at rawURL and declares exchange as a durable
// topic exchange.
func Dial(rawURL, exchange string) (*Connection, error) {
	clean, err := cleanURL(rawURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, oops.Code("NOTIFY_DIAL_FAILED").With("url", redactURL(clean)).Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_DIAL_FAILED").With("operation", "open channel").Wrap(err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_DIAL_FAILED").
			With("operation", "declare exchange").
			With("exchange", exchange).
			Wrap(err)
	}
	return &Connection{conn: conn, channel: ch}, nil
}

// Channel returns the publishing channel.
func (c *Connection) Channel() Publisher {
	return c.channel
}

// Close closes the channel and the connection.
func (c *Connection) Close() error {
	chErr := c.channel.Close()
	connErr := c.conn.Close()
	for _, err := range []error{chErr, connErr} {
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return oops.Code("NOTIFY_CLOSE_FAILED").Wrap(err)
		}
	}
	return nil
}

func cleanURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", oops.Code("NOTIFY_URL_INVALID").Wrap(err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", oops.Code("NOTIFY_URL_INVALID").
			With("scheme", u.Scheme).
			Errorf("broker URL must use amqp:// or amqps://")
	}
	return clean, nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Redacted()
}

// Options configures an AMQPNotifier. Zero values select the defaults.
type Options struct {
	Exchange string
	// Attempts is the total number of publish attempts per message.
	Attempts uint64
	// Backoff is the first retry delay; each later retry doubles it.
	Backoff time.Duration
	Buffer  int
	Logger  *slog.Logger
}

// AMQPNotifier publishes notifications to a topic exchange. Enqueue only
// queues the message; a single worker publishes in order.
type AMQPNotifier struct {
	pub      Publisher
	exchange string
	attempts uint64
	backoff  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Message

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAMQPNotifier creates an AMQPNotifier and starts its worker.
func NewAMQPNotifier(pub Publisher, opts Options) (*AMQPNotifier, error) {
	if pub == nil {
		return nil, oops.Errorf("publisher is required")
	}
	if opts.Exchange == "" {
		opts.Exchange = DefaultExchange
	}
	if opts.Attempts == 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &AMQPNotifier{
		pub:      pub,
		exchange: opts.Exchange,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		logger:   opts.Logger,
		now:      time.Now,
		queue:    make(chan Message, opts.Buffer),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go n.run()
	return n, nil
}

// Enqueue queues a notification for publishing. It fails when the queue is
// full or the notifier is closed.
func (n *AMQPNotifier) Enqueue(ctx context.Context, kind, recipientEmail string, payload map[string]any) error {
	msg := newMessage(kind, recipientEmail, payload, n.now())

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		recordOutcome(kind, OutcomeDropped)
		return oops.Code("NOTIFY_CLOSED").With("kind", kind).Errorf("notifier is closed")
	}
	select {
	case n.queue <- msg:
		QueueDepth.Inc()
		n.logger.DebugContext(ctx, "notification queued", "kind", kind, "message_id", msg.ID)
		return nil
	default:
		recordOutcome(kind, OutcomeDropped)
		return oops.Code("NOTIFY_QUEUE_FULL").
			With("kind", kind).
			With("capacity", cap(n.queue)).
			Errorf("notification queue is full")
	}
}

// Close stops accepting notifications and waits for queued ones to be
// published. If ctx ends first, in-flight retries are abandoned.
func (n *AMQPNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return nil
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	select {
	case <-n.done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		<-n.done
		return oops.Code("NOTIFY_DRAIN_TIMEOUT").Wrap(ctx.Err())
	}
}

func (n *AMQPNotifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		QueueDepth.Dec()
		if err := n.publish(n.ctx, msg); err != nil {
			recordOutcome(msg.Kind, OutcomeFailed)
			errutil.LogErrorContext(n.ctx, n.logger, "notification publish failed", err)
			continue
		}
		recordOutcome(msg.Kind, OutcomePublished)
	}
}

func (n *AMQPNotifier) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return oops.Code("NOTIFY_ENCODE_FAILED").With("kind", msg.Kind).Wrap(err)
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Kind,
		Timestamp:    msg.CreatedAt,
		Body:         body,
	}

	backoff := retry.WithMaxRetries(n.attempts-1, retry.NewExponential(n.backoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		PublishAttempts.Inc()
		if err := n.pub.PublishWithContext(ctx, n.exchange, RoutingKey(msg.Kind), false, false, publishing); err != nil {
			n.logger.WarnContext(ctx, "notification publish attempt failed",
				"kind", msg.Kind,
				"message_id", msg.ID,
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("NOTIFY_PUBLISH_FAILED").
			With("kind", msg.Kind).
			With("message_id", msg.ID).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
