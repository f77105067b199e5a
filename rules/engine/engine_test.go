package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuaworth/hoistwaywatch/common/logging"
	"github.com/joshuaworth/hoistwaywatch/common/models"
	"github.com/joshuaworth/hoistwaywatch/rules/correlation"
	"github.com/joshuaworth/hoistwaywatch/rules/ruleset"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const r001 = `
version: 1
rules:
  - id: "R001"
    when:
      event_type: "vision.motion_in_zone.v1"
      zone_id: "car_path"
      motion_score_gte: 0.15
      confidence_gte: 0.50
    then:
      severity: "critical"
      hazard_score: 90
      summary: "Motion detected in car path"
      recommended_action: "Stop."
`

const r100 = `
version: 1
rules:
  - id: "R100"
    when:
      event_type: "vision.motion_in_zone.v1"
      zone_id: "car_path"
      motion_score_gte: 0.15
      and_recent:
        - event_type: "vision.person_in_zone.v1"
          zone_id: "car_path"
          within_sec: 10.0
    then:
      severity: critical
      hazard_score: 95
`

type fixture struct {
	clock  *correlation.ManualClock
	engine *Engine
}

func newFixture(t *testing.T, doc string) *fixture {
	t.Helper()
	rs, err := ruleset.Parse([]byte(doc), ruleset.WithLogger(logging.Discard().Logger))
	require.NoError(t, err)

	clock := correlation.NewManualClock(t0)
	store := correlation.NewStore(correlation.WithClock(clock.Now))
	return &fixture{
		clock:  clock,
		engine: New(rs, store, WithLogger(logging.Discard().Logger)),
	}
}

// event builds an event stamped with the fixture clock's current time.
func (f *fixture) event(id string, eventType models.EventType, payload models.Payload) *models.Event {
	return &models.Event{
		SchemaVersion: models.SchemaVersion,
		EventID:       id,
		Type:          eventType,
		Timestamp:     f.clock.Now(),
		SiteID:        "site-1",
		CameraID:      "cam1",
		Source:        models.EventSource{Service: "vision", InstanceID: "v1"},
		Payload:       payload,
	}
}

func motion(score, confidence float64) models.Payload {
	return models.Payload{
		"zone_id":      models.String("car_path"),
		"motion_score": models.Number(score),
		"confidence":   models.Number(confidence),
	}
}

func person() models.Payload {
	return models.Payload{"zone_id": models.String("car_path"), "confidence": models.Number(0.9)}
}

func TestEvaluate_UnmatchedTypeYieldsNothing(t *testing.T) {
	f := newFixture(t, r001)

	for _, eventType := range []models.EventType{
		models.EventCameraHealth,
		models.EventPersonInZone,
		models.EventLightingQuality,
		models.EventTamperOrOcclusion,
	} {
		t.Run(string(eventType), func(t *testing.T) {
			alerts := f.engine.Evaluate(f.event("evt_x", eventType, motion(0.9, 0.9)))
			assert.Empty(t, alerts)
		})
	}
}

func TestEvaluate_ThresholdRule(t *testing.T) {
	f := newFixture(t, r001)

	alerts := f.engine.Evaluate(f.event("evt_1", models.EventMotionInZone, motion(0.2, 0.8)))
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, models.SeverityCritical, a.Severity)
	assert.Equal(t, 90.0, a.HazardScore)
	assert.Equal(t, "R001", a.Explanation.RuleID)
	assert.Equal(t, []string{"evt_1"}, a.Trigger.EventIDs)
	assert.Equal(t, "Motion detected in car path", a.Summary)
	assert.Equal(t, "Stop.", a.RecommendedAction)
	assert.Equal(t, "site-1", a.SiteID)
	assert.Equal(t, "cam1", a.CameraID)
	assert.Equal(t, t0, a.Timestamp)
	assert.Regexp(t, `^al_[0-9a-f]{32}$`, a.AlertID)
	assert.NoError(t, a.Validate())
}

func TestEvaluate_ThresholdRuleRejections(t *testing.T) {
	f := newFixture(t, r001)

	tests := []struct {
		name    string
		payload models.Payload
	}{
		{name: "motion below threshold", payload: motion(0.1, 0.8)},
		{name: "confidence below threshold", payload: motion(0.5, 0.4)},
		{name: "other zone", payload: models.Payload{
			"zone_id":      models.String("pit"),
			"motion_score": models.Number(0.9),
			"confidence":   models.Number(0.9),
		}},
		{name: "missing zone", payload: models.Payload{
			"motion_score": models.Number(0.9),
			"confidence":   models.Number(0.9),
		}},
		{name: "non-numeric score", payload: models.Payload{
			"zone_id":      models.String("car_path"),
			"motion_score": models.String("high"),
			"confidence":   models.Number(0.9),
		}},
		{name: "missing score counts as zero", payload: models.Payload{
			"zone_id":    models.String("car_path"),
			"confidence": models.Number(0.9),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, f.engine.Evaluate(f.event("evt_r", models.EventMotionInZone, tt.payload)))
		})
	}
}

func TestEvaluate_AndRecentRequiresPriorEvent(t *testing.T) {
	f := newFixture(t, r100)

	assert.Empty(t, f.engine.Evaluate(f.event("evt_m1", models.EventMotionInZone, motion(0.5, 0.9))),
		"motion before any person event must not fire")

	f.clock.Advance(2 * time.Second)
	assert.Empty(t, f.engine.Evaluate(f.event("evt_p1", models.EventPersonInZone, person())))

	f.clock.Advance(3 * time.Second)
	alerts := f.engine.Evaluate(f.event("evt_m2", models.EventMotionInZone, motion(0.5, 0.9)))
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, "R100", a.Explanation.RuleID)
	assert.Equal(t, []string{"evt_m2", "evt_p1"}, a.Trigger.EventIDs)

	last := a.Explanation.Inputs[len(a.Explanation.Inputs)-1]
	assert.Equal(t, "recent.vision.person_in_zone.v1", last.Name)
	assert.Equal(t, "observed 3s before evaluation (window 10s)", last.Note)
	obj, ok := last.Value.AsObject()
	require.True(t, ok)
	assert.True(t, obj["event_id"].Equal(models.String("evt_p1")))
	assert.True(t, obj["age_sec"].Equal(models.Number(3)))
	assert.Contains(t, a.Explanation.Why, "recent vision.person_in_zone.v1 zone_id=car_path 3s ago")
}

func TestEvaluate_AndRecentOtherZoneDoesNotSatisfy(t *testing.T) {
	f := newFixture(t, r100)

	f.engine.Evaluate(f.event("evt_p", models.EventPersonInZone, models.Payload{"zone_id": models.String("pit")}))
	assert.Empty(t, f.engine.Evaluate(f.event("evt_m", models.EventMotionInZone, motion(0.5, 0.9))))
}

func TestEvaluate_FreshnessBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		fires   bool
	}{
		{name: "inside window", elapsed: 9 * time.Second, fires: true},
		{name: "exactly at window", elapsed: 10 * time.Second, fires: true},
		{name: "just past window", elapsed: 10*time.Second + time.Millisecond, fires: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, r100)
			f.engine.Evaluate(f.event("evt_p", models.EventPersonInZone, person()))

			f.clock.Advance(tt.elapsed)
			alerts := f.engine.Evaluate(f.event("evt_m", models.EventMotionInZone, motion(0.5, 0.9)))
			if tt.fires {
				assert.Len(t, alerts, 1)
			} else {
				assert.Empty(t, alerts)
			}
		})
	}
}

func TestEvaluate_IndependentAlerts(t *testing.T) {
	f := newFixture(t, r001)
	ev := f.event("evt_same", models.EventMotionInZone, motion(0.2, 0.8))

	first := f.engine.Evaluate(ev)
	second := f.engine.Evaluate(ev)
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	assert.NotEqual(t, first[0].AlertID, second[0].AlertID)
	assert.NotSame(t, first[0], second[0])
	assert.Equal(t, first[0].Explanation.RuleID, second[0].Explanation.RuleID)
	assert.Equal(t, first[0].Severity, second[0].Severity)
	assert.Equal(t, first[0].HazardScore, second[0].HazardScore)
}

func TestEvaluate_Cooldown(t *testing.T) {
	f := newFixture(t, `
rules:
  - id: R.cool
    when:
      event_type: vision.motion_in_zone.v1
      motion_score_gte: 0.15
    then:
      cooldown_sec: 30
`)

	first := f.engine.EvaluateDetailed(f.event("evt_1", models.EventMotionInZone, motion(0.5, 0.9)))
	assert.Len(t, first.Alerts, 1)

	f.clock.Advance(10 * time.Second)
	second := f.engine.EvaluateDetailed(f.event("evt_2", models.EventMotionInZone, motion(0.5, 0.9)))
	assert.Empty(t, second.Alerts)
	assert.Equal(t, []string{"R.cool"}, second.Suppressed)

	f.clock.Advance(20 * time.Second)
	third := f.engine.EvaluateDetailed(f.event("evt_3", models.EventMotionInZone, motion(0.5, 0.9)))
	require.Len(t, third.Alerts, 1)
	assert.Equal(t, []string{"evt_3"}, third.Alerts[0].Trigger.EventIDs)
}

func TestEvaluate_CooldownScopes(t *testing.T) {
	doc := `
rules:
  - id: R.scoped
    when:
      event_type: vision.motion_in_zone.v1
    then:
      cooldown_sec: 60
      cooldown_scope: %s
`
	zone := func(z string) models.Payload { return models.Payload{"zone_id": models.String(z)} }

	tests := []struct {
		scope      string
		secondZone string
		secondCam  string
		wantSecond int
	}{
		{scope: "rule", secondZone: "pit", secondCam: "cam1", wantSecond: 0},
		{scope: "zone", secondZone: "pit", secondCam: "cam1", wantSecond: 1},
		{scope: "zone", secondZone: "car_path", secondCam: "cam2", wantSecond: 0},
		{scope: "camera", secondZone: "pit", secondCam: "cam2", wantSecond: 1},
		{scope: "camera", secondZone: "pit", secondCam: "cam1", wantSecond: 0},
	}

	for _, tt := range tests {
		t.Run(tt.scope+"/"+tt.secondZone+"/"+tt.secondCam, func(t *testing.T) {
			f := newFixture(t, fmt.Sprintf(doc, tt.scope))

			require.Len(t, f.engine.Evaluate(f.event("evt_1", models.EventMotionInZone, zone("car_path"))), 1)

			second := f.event("evt_2", models.EventMotionInZone, zone(tt.secondZone))
			second.CameraID = tt.secondCam
			assert.Len(t, f.engine.Evaluate(second), tt.wantSecond)
		})
	}
}

func TestEvaluate_CooldownDisabledNeverSuppresses(t *testing.T) {
	f := newFixture(t, r001)
	for i := 0; i < 5; i++ {
		assert.Len(t, f.engine.Evaluate(f.event(fmt.Sprintf("evt_%d", i), models.EventMotionInZone, motion(0.2, 0.8))), 1)
	}
}

func TestEvaluate_MalformedEntriesSkipped(t *testing.T) {
	f := newFixture(t, `
rules:
  - when:
      event_type: vision.motion_in_zone.v1
  - id: R.ok
    when:
      event_type: vision.motion_in_zone.v1
`)
	require.Len(t, f.engine.Rules().Skipped, 1)

	alerts := f.engine.Evaluate(f.event("evt_1", models.EventMotionInZone, motion(0.2, 0.8)))
	require.Len(t, alerts, 1)
	assert.Equal(t, "R.ok", alerts[0].Explanation.RuleID)
}

func TestEvaluate_MultipleRulesInOrder(t *testing.T) {
	f := newFixture(t, `
rules:
  - id: B.second_alphabetically_first_declared
    when: {event_type: vision.motion_in_zone.v1}
    then: {severity: info, hazard_score: 10}
  - id: A.declared_second
    when: {event_type: vision.motion_in_zone.v1}
  - id: C.other_type
    when: {event_type: vision.person_in_zone.v1}
`)
	alerts := f.engine.Evaluate(f.event("evt_1", models.EventMotionInZone, motion(0.2, 0.8)))
	require.Len(t, alerts, 2)
	assert.Equal(t, "B.second_alphabetically_first_declared", alerts[0].Explanation.RuleID)
	assert.Equal(t, "A.declared_second", alerts[1].Explanation.RuleID)
	assert.Equal(t, models.SeverityWarning, alerts[1].Severity)
	assert.Equal(t, 50.0, alerts[1].HazardScore)
	assert.Equal(t, "A.declared_second", alerts[1].Summary)
}

func TestEvaluate_Explanation(t *testing.T) {
	f := newFixture(t, r001)
	payload := motion(0.2, 0.8)
	payload["status"] = models.String("ok")
	payload["frame_id"] = models.Number(42)

	alerts := f.engine.Evaluate(f.event("evt_1", models.EventMotionInZone, payload))
	require.Len(t, alerts, 1)
	exp := alerts[0].Explanation

	names := make([]string, 0, len(exp.Inputs))
	for _, in := range exp.Inputs {
		names = append(names, in.Name)
	}
	assert.Equal(t, []string{"event_id", "event_type", "zone_id", "motion_score", "confidence", "status"}, names)
	assert.Equal(t, "threshold >= 0.15", exp.Inputs[3].Note)
	assert.Equal(t, "threshold >= 0.5", exp.Inputs[4].Note)
	assert.Empty(t, exp.Inputs[2].Note)
	assert.Equal(t,
		"matched R001, type=vision.motion_in_zone.v1, zone_id=car_path, motion_score=0.2, confidence=0.8, status=ok",
		exp.Why)
}

func TestEvaluate_ProvenanceFields(t *testing.T) {
	f := newFixture(t, r001)
	ev := f.event("evt_1", models.EventMotionInZone, motion(0.2, 0.8))
	ev.CorrelationID = "corr-7"
	ev.Evidence = models.Payload{
		"frame_refs":       models.List(models.String("frames/cam1/001.jpg")),
		"zone_overlay_ref": models.String("overlays/car_path.png"),
	}

	alerts := f.engine.Evaluate(ev)
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, "corr-7", a.Trigger.CorrelationID)
	require.NotNil(t, a.Evidence)
	assert.Equal(t, []string{"frames/cam1/001.jpg"}, a.Evidence.FrameRefs)
	assert.Equal(t, "overlays/car_path.png", a.Evidence.ZoneOverlayRef)
	key, _ := a.Debug.StringField("correlation_key")
	assert.Equal(t, "vision.motion_in_zone.v1|car_path", key)
}

func TestEvaluate_RecordsEveryEvent(t *testing.T) {
	f := newFixture(t, r001)
	f.engine.Evaluate(f.event("evt_h", models.EventCameraHealth, models.Payload{"status": models.String("ok")}))
	f.engine.Evaluate(f.event("evt_m", models.EventMotionInZone, motion(0.2, 0.8)))

	assert.Equal(t, 2, f.engine.Store().Len())
	entry, ok := f.engine.Store().Lookup("capture.camera_health.v1|-")
	require.True(t, ok)
	assert.Equal(t, "evt_h", entry.EventID)
}

func TestEvaluate_EventVisibleToOwnRule(t *testing.T) {
	f := newFixture(t, `
version: 1
rules:
  - id: "R.self"
    when:
      event_type: "vision.motion_in_zone.v1"
      zone_id: "car_path"
      and_recent:
        - event_type: "vision.motion_in_zone.v1"
          zone_id: "car_path"
          within_sec: 0
`)

	alerts := f.engine.Evaluate(f.event("evt_first", models.EventMotionInZone, motion(0.2, 0.8)))
	require.Len(t, alerts, 1)
	assert.Equal(t, []string{"evt_first"}, alerts[0].Trigger.EventIDs)
}

func TestEvaluate_LargeCooldownSuppresses(t *testing.T) {
	f := newFixture(t, `
version: 1
rules:
  - id: "R.quiet"
    when:
      event_type: "vision.motion_in_zone.v1"
    then:
      cooldown_sec: 9e9
`)

	total := 0
	for i := 0; i < 3; i++ {
		total += len(f.engine.Evaluate(f.event(fmt.Sprintf("evt_%d", i), models.EventMotionInZone, motion(0.2, 0.8))))
		f.clock.Advance(time.Second)
	}
	assert.Equal(t, 1, total)
}

func TestEvaluate_ConcurrentWorkers(t *testing.T) {
	f := newFixture(t, r100)
	f.engine.Evaluate(f.event("evt_p", models.EventPersonInZone, person()))

	var wg sync.WaitGroup
	results := make(chan int, 64)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 16; i++ {
				ev := f.event(fmt.Sprintf("evt_%d_%d", worker, i), models.EventMotionInZone, motion(0.5, 0.9))
				results <- len(f.engine.Evaluate(ev))
			}
		}(w)
	}
	wg.Wait()
	close(results)

	total := 0
	for n := range results {
		total += n
	}
	assert.Equal(t, 64, total)
}
