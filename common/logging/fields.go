package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across services.
const (
	FieldService       = "service"
	FieldEventID       = "event_id"
	FieldEventType     = "event_type"
	FieldCorrelationID = "correlation_id"
	FieldRuleID        = "rule_id"
	FieldAlertID       = "alert_id"
	FieldSeverity      = "severity"
	FieldSubject       = "subject"
	FieldCount         = "count"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldPath          = "path"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventType returns a slog attribute for an event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// RuleID returns a slog attribute for a rule ID.
func RuleID(id string) slog.Attr {
	return slog.String(FieldRuleID, id)
}

// AlertID returns a slog attribute for an alert ID.
func AlertID(id string) slog.Attr {
	return slog.String(FieldAlertID, id)
}

// Severity returns a slog attribute for an alert severity.
func Severity(s string) slog.Attr {
	return slog.String(FieldSeverity, s)
}

// Subject returns a slog attribute for a bus subject.
func Subject(s string) slog.Attr {
	return slog.String(FieldSubject, s)
}

// Count returns a slog attribute for a count.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Path returns a slog attribute for a filesystem path.
func Path(p string) slog.Attr {
	return slog.String(FieldPath, p)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
