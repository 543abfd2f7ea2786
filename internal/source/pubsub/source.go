// Package pubsub implements a message source pulling alerts from a
// Google Cloud Pub/Sub subscription.
package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"reportwatch/internal/watch"
)

// Config identifies the subscription carrying alert notifications.
type Config struct {
	ProjectID      string `mapstructure:"project_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
	// DrainWindow bounds how long one ListMessages call keeps pulling when
	// fewer than Limit messages are waiting.
	DrainWindow time.Duration `mapstructure:"drain_window"`
}

// Source pulls batches of alert messages from a Pub/Sub subscription.
// Messages are acked once captured into a batch: delivery is at-least-once
// and the ingestion ledger, not the broker, is the dedup boundary. Messages
// over the batch limit are nacked so they redeliver on the next invocation.
type Source struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
	window time.Duration
	logger *zap.Logger
}

// New connects a Pub/Sub client and resolves the subscription handle.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.ProjectID == "" || cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("source.project_id and source.subscription_id are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	window := cfg.DrainWindow
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Source{
		client: client,
		sub:    client.Subscription(cfg.SubscriptionID),
		window: window,
		logger: logger,
	}, nil
}

// ListMessages pulls up to filter.Limit messages, stopping early when the
// drain window elapses. The broker message id becomes the alert id.
func (s *Source) ListMessages(ctx context.Context, filter watch.MessageFilter) ([]watch.AlertMessage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	recvCtx, cancel := context.WithTimeout(ctx, s.window)
	defer cancel()

	col := newCollector(limit, filter.Since)
	err := s.sub.Receive(recvCtx, func(_ context.Context, m *pubsub.Message) {
		msg := watch.AlertMessage{
			ID:         m.ID,
			ReceivedAt: m.PublishTime,
			RawBody:    string(m.Data),
		}
		switch col.capture(msg) {
		case captureOverflow:
			// The batch is full; hand the message back for redelivery.
			m.Nack()
			cancel()
		case captureDropOld:
			m.Ack()
		case captureAccept:
			m.Ack()
			if col.full() {
				cancel()
			}
		}
	})
	messages := col.batch()
	if err != nil && ctx.Err() == nil && recvCtx.Err() == nil {
		return nil, fmt.Errorf("receive from subscription: %w", err)
	}

	s.logger.Debug("pulled alert batch", zap.Int("count", len(messages)))
	return messages, nil
}

type captureResult int

const (
	captureAccept captureResult = iota
	captureDropOld
	captureOverflow
)

// collector accumulates one batch under a limit. The capture verdict decides
// the broker ack: accepted and too-old messages are acked, overflow is
// nacked so nothing is consumed without reaching the ingestion ledger.
type collector struct {
	mu    sync.Mutex
	limit int
	since time.Time
	msgs  []watch.AlertMessage
}

func newCollector(limit int, since time.Time) *collector {
	return &collector{limit: limit, since: since}
}

func (c *collector) capture(msg watch.AlertMessage) captureResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) >= c.limit {
		return captureOverflow
	}
	if !c.since.IsZero() && msg.ReceivedAt.Before(c.since) {
		return captureDropOld
	}
	c.msgs = append(c.msgs, msg)
	return captureAccept
}

func (c *collector) full() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs) >= c.limit
}

func (c *collector) batch() []watch.AlertMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs
}

// Close releases the underlying client.
func (s *Source) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
