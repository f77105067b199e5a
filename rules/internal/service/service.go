package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joshuaworth/hoistwaywatch/common/logging"
	"github.com/joshuaworth/hoistwaywatch/common/messaging"
	"github.com/joshuaworth/hoistwaywatch/common/models"
	"github.com/joshuaworth/hoistwaywatch/rules/engine"
	"github.com/joshuaworth/hoistwaywatch/rules/internal/metrics"
)

// ErrClosed is returned when submitting to a closed service.
var ErrClosed = errors.New("service closed")

// Config controls the evaluation pipeline.
type Config struct {
	// PublishSubject receives every emitted alert.
	PublishSubject string

	// Workers evaluating events. 1 keeps delivery order; more trades order
	// for throughput.
	Workers int

	// QueueSize bounds the intake channel; a full queue blocks the submitter.
	QueueSize int
}

// Service feeds validated events through a bounded queue into the engine and
// publishes the resulting alerts.
type Service struct {
	engine  *engine.Engine
	pub     messaging.Publisher
	cfg     Config
	logger  *logging.Logger
	queue   chan *models.Event
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	closeMu sync.Once
}

// NewService creates a service. Zero Workers or QueueSize fall back to 1 and 256.
func NewService(eng *engine.Engine, pub messaging.Publisher, cfg Config, logger *logging.Logger) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	if cfg.PublishSubject == "" {
		cfg.PublishSubject = messaging.SubjectAlertsV1
	}
	if logger == nil {
		logger = logging.Default()
	}

	metrics.QueueCapacity.Set(float64(cfg.QueueSize))
	metrics.RulesLoaded.Set(float64(eng.Rules().Len()))
	metrics.RulesSkipped.Set(float64(len(eng.Rules().Skipped)))

	return &Service{
		engine: eng,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan *models.Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// HandleMessage adapts Submit to a bus subscription. Invalid events are dropped
// with a warning and never reported as handler failures.
func (s *Service) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	err := s.Submit(ctx, msg.Data)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrInvalidEvent):
		metrics.EventsDropped.WithLabelValues("invalid").Inc()
		s.logger.Warn("dropping invalid event",
			logging.Subject(msg.Subject),
			logging.Error(err))
		return nil
	case errors.Is(err, ErrClosed):
		metrics.EventsDropped.WithLabelValues("shutdown").Inc()
		s.logger.Debug("dropping event during shutdown", logging.Subject(msg.Subject))
		return nil
	default:
		return err
	}
}

// Submit validates one raw event message and enqueues it.
func (s *Service) Submit(ctx context.Context, data []byte) error {
	ev, err := models.ParseEvent(data)
	if err != nil {
		return err
	}
	return s.Enqueue(ctx, ev)
}

// Enqueue places a validated event on the queue, blocking while it is full.
func (s *Service) Enqueue(ctx context.Context, ev *models.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- ev:
		metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
		metrics.QueueDepth.Set(float64(len(s.queue)))
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake. Events already queued are still evaluated by Run.
func (s *Service) Close() {
	s.closeMu.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
}

// Run evaluates queued events until the service is closed and the queue is
// drained. Cancelling ctx closes the service; queued events still finish.
func (s *Service) Run(ctx context.Context) error {
	publishCtx := context.WithoutCancel(ctx)
	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	s.logger.Info("evaluation workers started",
		"workers", s.cfg.Workers,
		"queue_size", s.cfg.QueueSize,
		"rules", s.engine.Rules().Len())

	var g errgroup.Group
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			for ev := range s.queue {
				metrics.QueueDepth.Set(float64(len(s.queue)))
				s.process(publishCtx, ev)
			}
			return nil
		})
	}
	err := g.Wait()
	s.logger.Info("evaluation workers stopped")
	return err
}

func (s *Service) process(ctx context.Context, ev *models.Event) {
	ctx = logging.WithEventID(ctx, ev.EventID)
	if ev.CorrelationID != "" {
		ctx = logging.WithCorrelationID(ctx, ev.CorrelationID)
	}

	start := time.Now()
	res := s.engine.EvaluateDetailed(ev)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	metrics.CorrelationKeys.Set(float64(s.engine.Store().Len()))

	for _, ruleID := range res.Suppressed {
		metrics.AlertsSuppressed.WithLabelValues(ruleID).Inc()
	}
	for _, alert := range res.Alerts {
		if err := s.publish(ctx, alert); err != nil {
			metrics.PublishErrors.Inc()
			s.logger.ErrorContext(ctx, "failed to publish alert",
				logging.AlertID(alert.AlertID),
				logging.RuleID(alert.Explanation.RuleID),
				logging.Error(err))
			continue
		}
		metrics.AlertsTotal.WithLabelValues(alert.Explanation.RuleID, string(alert.Severity)).Inc()
		s.logger.InfoContext(ctx, "alert emitted",
			logging.AlertID(alert.AlertID),
			logging.RuleID(alert.Explanation.RuleID),
			logging.Severity(string(alert.Severity)),
			"hazard_score", alert.HazardScore)
	}
}

func (s *Service) publish(ctx context.Context, alert *models.Alert) error {
	data, err := alert.MarshalLine()
	if err != nil {
		return err
	}
	if err := s.pub.Publish(ctx, s.cfg.PublishSubject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", s.cfg.PublishSubject, err)
	}
	return nil
}
