// Package nats delivers alerts from the bus to the sink.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joshuaworth/hoistwaywatch/common/logging"
	"github.com/joshuaworth/hoistwaywatch/common/messaging"
	natsclient "github.com/joshuaworth/hoistwaywatch/common/messaging/nats"
)

// Durable is the JetStream surface used for durable alert consumption.
type Durable interface {
	EnsureConsumer(ctx context.Context, stream natsclient.StreamConfig, consumer natsclient.ConsumerConfig) error
	ConsumeMessages(ctx context.Context, streamName, consumerName string, handler messaging.MessageHandler) (func(), error)
}

// Options selects how alerts are consumed.
type Options struct {
	Subject string
	Queue   string

	// Consumer names the durable consumer. Used only with a Durable.
	Consumer string
}

// Consumer feeds alert messages to a handler from either a core subscription
// or a durable JetStream consumer.
type Consumer struct {
	sub     messaging.Subscriber
	durable Durable
	opts    Options
	handle  messaging.MessageHandler
	logger  *slog.Logger

	mu   sync.Mutex
	subs []messaging.Subscription
	stop func()
}

// NewConsumer creates a core subscription consumer.
func NewConsumer(sub messaging.Subscriber, opts Options, handle messaging.MessageHandler) *Consumer {
	if opts.Subject == "" {
		opts.Subject = messaging.SubjectAlertsV1
	}
	return &Consumer{
		sub:    sub,
		opts:   opts,
		handle: handle,
		logger: slog.Default().With(slog.String("component", "alert-consumer")),
	}
}

// NewDurableConsumer creates a consumer reading from the alerts stream.
// Messages are acknowledged only after handle succeeds.
func NewDurableConsumer(js Durable, opts Options, handle messaging.MessageHandler) *Consumer {
	c := NewConsumer(nil, opts, handle)
	c.durable = js
	if c.opts.Consumer == "" {
		c.opts.Consumer = "alert-sink"
	}
	return c
}

// WithLogger replaces the consumer's logger.
func (c *Consumer) WithLogger(logger *slog.Logger) *Consumer {
	c.logger = logger.With(slog.String("component", "alert-consumer"))
	return c
}

// Start begins delivering alerts.
func (c *Consumer) Start(ctx context.Context) error {
	if c.durable != nil {
		return c.startDurable(ctx)
	}

	sub, err := messaging.SubscribeQueue(c.sub, c.opts.Subject, c.opts.Queue, c.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.opts.Subject, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	c.logger.Info("Alert consumer started",
		logging.Subject(c.opts.Subject),
		slog.String("queue_group", c.opts.Queue))
	return nil
}

func (c *Consumer) startDurable(ctx context.Context) error {
	stream := natsclient.AlertsStream
	consumerCfg := natsclient.DefaultConsumerConfig(c.opts.Consumer, c.opts.Subject)
	if err := c.durable.EnsureConsumer(ctx, stream, consumerCfg); err != nil {
		return fmt.Errorf("failed to set up durable consumer: %w", err)
	}

	stop, err := c.durable.ConsumeMessages(ctx, stream.Name, c.opts.Consumer, c.handle)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()

	c.logger.Info("Durable alert consumer started",
		logging.Subject(c.opts.Subject),
		slog.String("stream", stream.Name),
		slog.String("consumer", c.opts.Consumer))
	return nil
}

// Stop ends delivery. It is safe to call more than once.
func (c *Consumer) Stop() {
	c.mu.Lock()
	subs, stop := c.subs, c.stop
	c.subs, c.stop = nil, nil
	c.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to unsubscribe", logging.Subject(sub.Subject()), logging.Error(err))
		}
	}
	if stop != nil {
		stop()
	}
}
