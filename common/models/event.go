// Package models defines the versioned wire contracts shared by every HoistwayWatch
// service: sensor events flowing into the rule engine and the alerts it emits.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the only contract version currently produced and accepted.
const SchemaVersion = 1

// ErrInvalidEvent is wrapped by every event validation failure.
var ErrInvalidEvent = errors.New("invalid event")

// EventType enumerates the event types sensor services publish.
type EventType string

const (
	EventCameraHealth      EventType = "capture.camera_health.v1"
	EventMotionInZone      EventType = "vision.motion_in_zone.v1"
	EventPersonInZone      EventType = "vision.person_in_zone.v1"
	EventLightingQuality   EventType = "vision.lighting_quality.v1"
	EventTamperOrOcclusion EventType = "vision.tamper_or_occlusion.v1"
)

// EventTypes lists every known event type in a stable order.
func EventTypes() []EventType {
	return []EventType{
		EventCameraHealth,
		EventMotionInZone,
		EventPersonInZone,
		EventLightingQuality,
		EventTamperOrOcclusion,
	}
}

// IsValid checks if the event type is known.
func (t EventType) IsValid() bool {
	switch t {
	case EventCameraHealth, EventMotionInZone, EventPersonInZone,
		EventLightingQuality, EventTamperOrOcclusion:
		return true
	default:
		return false
	}
}

// EventSource identifies the producing service instance.
type EventSource struct {
	Service    string `json:"service"`
	InstanceID string `json:"instance_id"`
	Version    string `json:"version,omitempty"`
}

// Event is one observation published by a sensor service.
type Event struct {
	SchemaVersion int         `json:"schema_version"`
	EventID       string      `json:"event_id"`
	Type          EventType   `json:"type"`
	Timestamp     time.Time   `json:"ts"`
	SiteID        string      `json:"site_id,omitempty"`
	CameraID      string      `json:"camera_id,omitempty"`
	Source        EventSource `json:"source"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Payload       Payload     `json:"payload"`
	Evidence      Payload     `json:"evidence,omitempty"`
}

// NewEvent builds an event with a fresh id and the current UTC time.
func NewEvent(eventType EventType, source EventSource, payload Payload) *Event {
	if payload == nil {
		payload = Payload{}
	}
	return &Event{
		SchemaVersion: SchemaVersion,
		EventID:       NewEventID(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Payload:       payload,
	}
}

// NewEventID returns an "evt_" prefixed random identifier.
func NewEventID() string {
	return "evt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ZoneID returns payload.zone_id when it is present and a string.
func (e *Event) ZoneID() (string, bool) {
	return e.Payload.StringField("zone_id")
}

// Validate checks the semantic constraints JSON Schema cannot express.
func (e *Event) Validate() error {
	var problems []string
	if e.SchemaVersion != SchemaVersion {
		problems = append(problems, fmt.Sprintf("schema_version: unsupported version %d", e.SchemaVersion))
	}
	if strings.TrimSpace(e.EventID) == "" {
		problems = append(problems, "event_id: required")
	}
	if !e.Type.IsValid() {
		problems = append(problems, fmt.Sprintf("type: unknown event type %q", e.Type))
	}
	if e.Timestamp.IsZero() {
		problems = append(problems, "ts: required")
	}
	if e.Source.Service == "" {
		problems = append(problems, "source.service: required")
	}
	if e.Source.InstanceID == "" {
		problems = append(problems, "source.instance_id: required")
	}
	if len(problems) > 0 {
		return &ValidationError{Kind: ErrInvalidEvent, Problems: problems}
	}
	return nil
}

// ParseEvent decodes and validates one inbound event message. Any failure wraps
// ErrInvalidEvent.
func ParseEvent(data []byte) (*Event, error) {
	if err := validateAgainst(eventSchema, data); err != nil {
		return nil, wrapInvalid(ErrInvalidEvent, err)
	}

	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, wrapInvalid(ErrInvalidEvent, err)
	}
	if e.SchemaVersion == 0 {
		e.SchemaVersion = SchemaVersion
	}
	if e.Payload == nil {
		e.Payload = Payload{}
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// ValidationError lists every problem found in a rejected message.
type ValidationError struct {
	Kind     error
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func wrapInvalid(kind, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		ve.Kind = kind
		return ve
	}
	return &ValidationError{Kind: kind, Problems: []string{err.Error()}}
}
