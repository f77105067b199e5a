// Package sink records alerts: an append-only NDJSON log, an operator echo
// and an optional external command per alert.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/joshuaworth/hoistwaywatch/alerting/internal/metrics"
	"github.com/joshuaworth/hoistwaywatch/common/alertlog"
	"github.com/joshuaworth/hoistwaywatch/common/logging"
	"github.com/joshuaworth/hoistwaywatch/common/messaging"
	"github.com/joshuaworth/hoistwaywatch/common/models"
)

// Sink handles one alert at a time, in delivery order.
type Sink struct {
	mu     sync.Mutex
	log    *alertlog.Log
	echo   io.Writer
	exec   *Executor
	logger *logging.Logger
}

// New creates a sink. echo and exec may be nil.
func New(log *alertlog.Log, echo io.Writer, exec *Executor, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sink{log: log, echo: echo, exec: exec, logger: logger}
}

// HandleMessage adapts Handle to a bus subscription.
func (s *Sink) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	return s.Handle(ctx, msg.Data)
}

// Handle validates and records one alert message. Invalid alerts are logged
// and dropped without error. Only a failed log append is returned, so durable
// consumers redeliver alerts that were not written.
func (s *Sink) Handle(ctx context.Context, data []byte) error {
	alert, err := models.ParseAlert(data)
	if err != nil {
		metrics.AlertsInvalid.Inc()
		s.logger.WarnContext(ctx, "Dropping invalid alert", logging.Error(err))
		return nil
	}
	return s.Record(ctx, alert)
}

// Record appends alert to the log, echoes it and runs the alert command.
func (s *Sink) Record(ctx context.Context, alert *models.Alert) error {
	line, err := alert.MarshalLine()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metrics.AlertsReceived.WithLabelValues(string(alert.Severity)).Inc()
	ctx = logging.WithCorrelationID(ctx, alert.Trigger.CorrelationID)
	if len(alert.Trigger.EventIDs) > 0 {
		ctx = logging.WithEventID(ctx, alert.Trigger.EventIDs[0])
	}

	if s.log != nil {
		if err := s.log.Append(line); err != nil {
			metrics.LogWriteErrors.Inc()
			s.logger.ErrorContext(ctx, "Failed to append alert",
				logging.AlertID(alert.AlertID),
				logging.Path(s.log.Path()),
				logging.Error(err))
			return fmt.Errorf("record alert %s: %w", alert.AlertID, err)
		}
	}

	if s.echo != nil {
		if _, err := fmt.Fprintf(s.echo, "%s\n", line); err != nil {
			s.logger.WarnContext(ctx, "Failed to echo alert", logging.AlertID(alert.AlertID), logging.Error(err))
		}
	}

	s.logger.InfoContext(ctx, "Alert recorded",
		logging.AlertID(alert.AlertID),
		logging.RuleID(alert.Explanation.RuleID),
		logging.Severity(string(alert.Severity)))

	if s.exec != nil {
		s.runCommand(ctx, alert)
	}
	return nil
}

func (s *Sink) runCommand(ctx context.Context, alert *models.Alert) {
	start := time.Now()
	err := s.exec.Run(ctx, alert)
	elapsed := time.Since(start)
	metrics.ExecDuration.Observe(elapsed.Seconds())

	switch {
	case err == nil:
		metrics.ExecTotal.WithLabelValues("ok").Inc()
		s.logger.DebugContext(ctx, "Alert command finished",
			logging.AlertID(alert.AlertID), logging.Duration(elapsed))
	case errors.Is(err, ErrCommandTimeout):
		metrics.ExecTotal.WithLabelValues("timeout").Inc()
		s.logger.WarnContext(ctx, "Alert command timed out",
			logging.AlertID(alert.AlertID), logging.Duration(elapsed), logging.Error(err))
	default:
		metrics.ExecTotal.WithLabelValues("failed").Inc()
		s.logger.WarnContext(ctx, "Alert command failed",
			logging.AlertID(alert.AlertID), logging.Duration(elapsed), logging.Error(err))
	}
}
