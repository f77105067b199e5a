package messaging

import "strings"

// Subject constants for the HoistwayWatch bus.
// Events follow hw.events.{service}.{name}.v{n}; alerts are versioned on the subject.
const (
	// SubjectEventsPrefix prefixes every sensor event subject.
	SubjectEventsPrefix = "hw.events."

	SubjectEventsAll     = "hw.events.>"        // Every sensor event
	SubjectEventsCapture = "hw.events.capture.>" // Camera health from the capture service
	SubjectEventsVision  = "hw.events.vision.>"  // Zone, lighting and tamper events

	SubjectAlertsV1  = "hw.alerts.v1" // Alerts emitted by the rule engine
	SubjectAlertsAll = "hw.alerts.>"
)

// Queue group names for load-balanced consumers.
const (
	QueueRules  = "rules"  // Rule engine replicas
	QueueAlerts = "alerts" // Alert sink replicas
)

// StreamAlerts is the JetStream stream capturing alert subjects.
const StreamAlerts = "HW_ALERTS"

// EventSubject returns the publish subject for an event type.
// Example: vision.person_in_zone.v1 -> hw.events.vision.person_in_zone.v1
func EventSubject(eventType string) string {
	return SubjectEventsPrefix + strings.TrimSpace(eventType)
}
