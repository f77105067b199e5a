// Package nats connects the rule engine service to the event bus.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joshuaworth/hoistwaywatch/common/logging"
	"github.com/joshuaworth/hoistwaywatch/common/messaging"
)

// Handler subscribes the service's message handler to the event subject.
type Handler struct {
	sub     messaging.Subscriber
	handle  messaging.MessageHandler
	subject string
	queue   string
	logger  *slog.Logger

	mu   sync.Mutex
	subs []messaging.Subscription
}

// NewHandler creates a handler delivering subject (optionally load balanced
// across queue) to handle.
func NewHandler(sub messaging.Subscriber, subject, queue string, handle messaging.MessageHandler) *Handler {
	if subject == "" {
		subject = messaging.SubjectEventsAll
	}
	return &Handler{
		sub:     sub,
		handle:  handle,
		subject: subject,
		queue:   queue,
		logger:  slog.Default().With(slog.String("component", "nats-handler")),
	}
}

// WithLogger replaces the handler's logger.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger.With(slog.String("component", "nats-handler"))
	return h
}

// Start subscribes to the event subject.
func (h *Handler) Start(_ context.Context) error {
	sub, err := messaging.SubscribeQueue(h.sub, h.subject, h.queue, h.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", h.subject, err)
	}

	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()

	h.logger.Info("NATS handler started",
		logging.Subject(h.subject),
		slog.String("queue_group", h.queue))
	return nil
}

// Stop unsubscribes from every subject. It is safe to call more than once.
func (h *Handler) Stop() error {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	if len(subs) == 0 {
		return nil
	}
	h.logger.Info("Stopping NATS handler")
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warn("Failed to unsubscribe", logging.Subject(sub.Subject()), logging.Error(err))
		}
	}
	return nil
}

// Subject returns the subscribed subject.
func (h *Handler) Subject() string {
	return h.subject
}
