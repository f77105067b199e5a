package replay

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuaworth/hoistwaywatch/common/models"
	"github.com/joshuaworth/hoistwaywatch/rules/ruleset"
)

const rulesYAML = `
version: 1
rules:
  - id: "R001"
    when:
      event_type: "vision.motion_in_zone.v1"
      zone_id: "car_path"
      motion_score_gte: 0.15
      confidence_gte: 0.5
    then:
      severity: "critical"
      hazard_score: 90
      cooldown_sec: 5
  - id: "R100"
    when:
      event_type: "vision.motion_in_zone.v1"
      zone_id: "car_path"
      and_recent:
        - event_type: "vision.person_in_zone.v1"
          zone_id: "car_path"
          within_sec: 10
    then:
      severity: "critical"
      hazard_score: 95
`

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func eventLine(id, typ string, offset time.Duration, payload string) string {
	return fmt.Sprintf(`{"schema_version":1,"event_id":%q,"type":%q,"ts":%q,"camera_id":"cam1","source":{"service":"vision","instance_id":"v1"},"payload":%s}`,
		id, typ, base.Add(offset).Format(time.RFC3339Nano), payload)
}

func motion(id string, offset time.Duration) string {
	return eventLine(id, "vision.motion_in_zone.v1", offset, `{"zone_id":"car_path","motion_score":0.4,"confidence":0.9}`)
}

func person(id string, offset time.Duration) string {
	return eventLine(id, "vision.person_in_zone.v1", offset, `{"zone_id":"car_path","confidence":0.9}`)
}

func newReplayer(t *testing.T) *Replayer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rs, err := ruleset.Parse([]byte(rulesYAML), ruleset.WithLogger(logger))
	require.NoError(t, err)
	return New(rs, logger)
}

func ruleIDs(alerts []*models.Alert) []string {
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.Explanation.RuleID)
	}
	return ids
}

func TestReplay_FollowsEventTime(t *testing.T) {
	input := strings.Join([]string{
		motion("evt_m1", 0),
		person("evt_p1", 20*time.Second),
		motion("evt_m2", 25*time.Second),
		motion("evt_m3", 27*time.Second),
		motion("evt_m4", 45*time.Second),
	}, "\n")

	res, err := newReplayer(t).Run(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Events)
	assert.Empty(t, res.Invalid)
	// m1: R001 only. m2: R001 + R100. m3: R001 cooled down, R100 still fresh.
	// m4: R001 again, person is 25s old.
	assert.Equal(t, []string{"R001", "R001", "R100", "R100", "R001"}, ruleIDs(res.Alerts))
	assert.Equal(t, 1, res.Suppressed)

	r100 := res.Alerts[2]
	assert.Equal(t, []string{"evt_m2", "evt_p1"}, r100.Trigger.EventIDs)
	assert.Equal(t, base.Add(25*time.Second), r100.Timestamp)
}

func TestReplay_LateEventUsesLatestClock(t *testing.T) {
	input := strings.Join([]string{
		person("evt_p1", 30*time.Second),
		motion("evt_m1", 0),
	}, "\n")

	r := newReplayer(t)
	res, err := r.Run(strings.NewReader(input))
	require.NoError(t, err)

	// The clock stays at the person's timestamp, so the person is still fresh.
	assert.Equal(t, base.Add(30*time.Second), r.clock.Now())
	assert.Equal(t, []string{"R001", "R100"}, ruleIDs(res.Alerts))
}

func TestReplay_ReportsInvalidLines(t *testing.T) {
	input := strings.Join([]string{
		"not json",
		"",
		motion("evt_m1", 0),
		`{"event_id":"x","type":"vision.dragon.v1"}`,
	}, "\n")

	res, err := newReplayer(t).Run(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Events)
	require.Len(t, res.Invalid, 2)
	assert.Equal(t, 1, res.Invalid[0].Line)
	assert.Equal(t, 4, res.Invalid[1].Line)
	assert.ErrorIs(t, res.Invalid[0].Err, models.ErrInvalidEvent)
	assert.Contains(t, res.Invalid[1].Error(), "line 4")
	assert.Len(t, res.Alerts, 1)
}
