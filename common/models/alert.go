package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidAlert is wrapped by every alert validation failure.
var ErrInvalidAlert = errors.New("invalid alert")

// Severity of a hazard alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is one of info, warning or critical.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// ExplanationInput is one named input that contributed to an alert.
type ExplanationInput struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
	Note  string `json:"note,omitempty"`
}

// AlertExplanation names the rule that fired and why.
type AlertExplanation struct {
	RuleID string             `json:"rule_id"`
	Why    string             `json:"why"`
	Inputs []ExplanationInput `json:"inputs"`
}

// AlertTrigger lists the events that caused the alert, triggering event first.
type AlertTrigger struct {
	EventIDs      []string `json:"event_ids"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// AlertEvidence references captured frames for operator review.
type AlertEvidence struct {
	FrameRefs      []string `json:"frame_refs"`
	ZoneOverlayRef string   `json:"zone_overlay_ref,omitempty"`
}

// Alert is an explainable hazard notification. Alerts are never mutated after
// the engine hands them to the bus.
type Alert struct {
	SchemaVersion     int              `json:"schema_version"`
	AlertID           string           `json:"alert_id"`
	Timestamp         time.Time        `json:"ts"`
	SiteID            string           `json:"site_id,omitempty"`
	CameraID          string           `json:"camera_id,omitempty"`
	Severity          Severity         `json:"severity"`
	HazardScore       float64          `json:"hazard_score"`
	Summary           string           `json:"summary"`
	RecommendedAction string           `json:"recommended_action,omitempty"`
	Explanation       AlertExplanation `json:"explanation"`
	Trigger           AlertTrigger     `json:"trigger"`
	Evidence          *AlertEvidence   `json:"evidence,omitempty"`
	Debug             Payload          `json:"debug,omitempty"`
}

// NewAlertID returns an "al_" prefixed random identifier.
func NewAlertID() string {
	return "al_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidHazardScore reports whether score lies in [0,100].
func ValidHazardScore(score float64) bool {
	return !math.IsNaN(score) && score >= 0 && score <= 100
}

// Validate checks the alert invariants.
func (a *Alert) Validate() error {
	var problems []string
	if a.SchemaVersion != SchemaVersion {
		problems = append(problems, fmt.Sprintf("schema_version: unsupported version %d", a.SchemaVersion))
	}
	if a.AlertID == "" {
		problems = append(problems, "alert_id: required")
	}
	if a.Timestamp.IsZero() {
		problems = append(problems, "ts: required")
	}
	if !a.Severity.IsValid() {
		problems = append(problems, fmt.Sprintf("severity: unknown severity %q", a.Severity))
	}
	if !ValidHazardScore(a.HazardScore) {
		problems = append(problems, fmt.Sprintf("hazard_score: %v outside [0,100]", a.HazardScore))
	}
	if a.Explanation.RuleID == "" {
		problems = append(problems, "explanation.rule_id: required")
	}
	if len(a.Trigger.EventIDs) == 0 {
		problems = append(problems, "trigger.event_ids: at least one event id required")
	}
	if len(problems) > 0 {
		return &ValidationError{Kind: ErrInvalidAlert, Problems: problems}
	}
	return nil
}

// ParseAlert decodes and validates an alert message or alert log line.
func ParseAlert(data []byte) (*Alert, error) {
	if err := validateAgainst(alertSchema, data); err != nil {
		return nil, wrapInvalid(ErrInvalidAlert, err)
	}

	var a Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, wrapInvalid(ErrInvalidAlert, err)
	}
	if a.SchemaVersion == 0 {
		a.SchemaVersion = SchemaVersion
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// MarshalLine encodes the alert as one canonical JSON line without the trailing
// newline. HTML characters are not escaped so operators read the text verbatim.
func (a *Alert) MarshalLine() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("marshal alert %s: %w", a.AlertID, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EvidenceFromPayload extracts alert evidence from event evidence. It returns nil
// unless the event carries frame_refs or zone_overlay_ref.
func EvidenceFromPayload(p Payload) *AlertEvidence {
	if len(p) == 0 {
		return nil
	}
	var ev AlertEvidence
	found := false
	if refs, ok := p.Get("frame_refs"); ok {
		if items, ok := refs.AsList(); ok {
			found = true
			for _, item := range items {
				if s, ok := item.AsString(); ok {
					ev.FrameRefs = append(ev.FrameRefs, s)
				}
			}
		}
	}
	if ref, ok := p.StringField("zone_overlay_ref"); ok {
		found = true
		ev.ZoneOverlayRef = ref
	}
	if !found {
		return nil
	}
	if ev.FrameRefs == nil {
		ev.FrameRefs = []string{}
	}
	return &ev
}
