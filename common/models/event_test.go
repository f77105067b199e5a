package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const motionEventJSON = `{
	"schema_version": 1,
	"event_id": "evt_1",
	"type": "vision.motion_in_zone.v1",
	"ts": "2025-03-01T10:00:00.250000+00:00",
	"site_id": "site",
	"camera_id": "cam1",
	"source": {"service": "vision", "instance_id": "vision-1a2b3c4d"},
	"payload": {"zone_id": "car_path", "motion_score": 0.2, "confidence": 0.8}
}`

func TestParseEvent_Valid(t *testing.T) {
	ev, err := ParseEvent([]byte(motionEventJSON))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", ev.EventID)
	assert.Equal(t, EventMotionInZone, ev.Type)
	assert.Equal(t, "site", ev.SiteID)
	assert.Equal(t, "cam1", ev.CameraID)
	assert.Equal(t, "vision", ev.Source.Service)
	assert.True(t, ev.Timestamp.Equal(time.Date(2025, 3, 1, 10, 0, 0, 250000000, time.UTC)))

	zone, ok := ev.ZoneID()
	require.True(t, ok)
	assert.Equal(t, "car_path", zone)

	score, ok := ev.Payload["motion_score"].AsNumber()
	require.True(t, ok)
	assert.InDelta(t, 0.2, score, 1e-9)
}

func TestParseEvent_DefaultsOptionalFields(t *testing.T) {
	ev, err := ParseEvent([]byte(`{
		"event_id": "evt_2",
		"type": "capture.camera_health.v1",
		"ts": "2025-03-01T10:00:00Z",
		"site_id": null,
		"source": {"service": "capture", "instance_id": "capture-1"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, ev.SchemaVersion)
	assert.Empty(t, ev.SiteID)
	assert.NotNil(t, ev.Payload)
	assert.Empty(t, ev.Payload)
}

func TestParseEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{"event_id":`},
		{name: "not an object", body: `[1,2,3]`},
		{name: "missing event_id", body: `{"type":"vision.motion_in_zone.v1","ts":"2025-03-01T10:00:00Z","source":{"service":"v","instance_id":"i"}}`},
		{name: "empty event_id", body: `{"event_id":"","type":"vision.motion_in_zone.v1","ts":"2025-03-01T10:00:00Z","source":{"service":"v","instance_id":"i"}}`},
		{name: "unknown type", body: `{"event_id":"e","type":"vision.unicorn.v1","ts":"2025-03-01T10:00:00Z","source":{"service":"v","instance_id":"i"}}`},
		{name: "bad timestamp", body: `{"event_id":"e","type":"vision.motion_in_zone.v1","ts":"yesterday","source":{"service":"v","instance_id":"i"}}`},
		{name: "wrong schema version", body: `{"schema_version":2,"event_id":"e","type":"vision.motion_in_zone.v1","ts":"2025-03-01T10:00:00Z","source":{"service":"v","instance_id":"i"}}`},
		{name: "missing source", body: `{"event_id":"e","type":"vision.motion_in_zone.v1","ts":"2025-03-01T10:00:00Z"}`},
		{name: "payload not a mapping", body: `{"event_id":"e","type":"vision.motion_in_zone.v1","ts":"2025-03-01T10:00:00Z","source":{"service":"v","instance_id":"i"},"payload":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, ev)
			assert.True(t, errors.Is(err, ErrInvalidEvent), "error should wrap ErrInvalidEvent: %v", err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.NotEmpty(t, ve.Problems)
		})
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventPersonInZone, EventSource{Service: "vision", InstanceID: "v1"}, nil)

	assert.Regexp(t, `^evt_[0-9a-f]{32}$`, ev.EventID)
	assert.Equal(t, SchemaVersion, ev.SchemaVersion)
	assert.NotNil(t, ev.Payload)
	require.NoError(t, ev.Validate())
}

func TestEventType_IsValid(t *testing.T) {
	for _, et := range EventTypes() {
		assert.True(t, et.IsValid(), et)
	}
	assert.False(t, EventType("").IsValid())
	assert.False(t, EventType("vision.motion_in_zone.v2").IsValid())
}
