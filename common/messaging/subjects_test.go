package messaging

import (
	"strings"
	"testing"
)

func TestSubjectConstants_FollowNamingConvention(t *testing.T) {
	subjects := []string{
		SubjectEventsAll,
		SubjectEventsCapture,
		SubjectEventsVision,
		SubjectAlertsV1,
		SubjectAlertsAll,
	}

	for _, subject := range subjects {
		if !strings.HasPrefix(subject, "hw.") {
			t.Errorf("subject %q should start with 'hw.'", subject)
		}
		if strings.Contains(subject, " ") {
			t.Errorf("subject %q should not contain spaces", subject)
		}
	}
}

func TestEventSubject(t *testing.T) {
	tests := []struct {
		eventType string
		expected  string
	}{
		{eventType: "vision.person_in_zone.v1", expected: "hw.events.vision.person_in_zone.v1"},
		{eventType: "capture.camera_health.v1", expected: "hw.events.capture.camera_health.v1"},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			got := EventSubject(tt.eventType)
			if got != tt.expected {
				t.Errorf("EventSubject(%q) = %q, expected %q", tt.eventType, got, tt.expected)
			}
			if !strings.HasPrefix(got, strings.TrimSuffix(SubjectEventsAll, ">")) {
				t.Errorf("%q is not covered by %q", got, SubjectEventsAll)
			}
		})
	}
}
