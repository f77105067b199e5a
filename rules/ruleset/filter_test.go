package ruleset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joshuaworth/hoistwaywatch/common/models"
)

func TestFilter_MatchPayload(t *testing.T) {
	exact := Filter{Kind: FilterExact, Field: "zone_id", Equals: models.String("car_path")}
	set := Filter{Kind: FilterSetMembership, Field: "status", OneOf: []models.Value{models.String("offline"), models.String("degraded")}}
	threshold := Filter{Kind: FilterNumericThreshold, Field: "motion_score", Min: 0.15}
	zeroThreshold := Filter{Kind: FilterNumericThreshold, Field: "motion_score", Min: 0}
	temporal := Filter{Kind: FilterTemporalCorrelation, Recent: &RecentCondition{EventType: models.EventPersonInZone}}

	tests := []struct {
		name    string
		filter  Filter
		payload models.Payload
		want    bool
	}{
		{name: "exact match", filter: exact, payload: models.Payload{"zone_id": models.String("car_path")}, want: true},
		{name: "exact mismatch", filter: exact, payload: models.Payload{"zone_id": models.String("pit")}},
		{name: "exact missing", filter: exact, payload: models.Payload{}},
		{name: "exact wrong type", filter: exact, payload: models.Payload{"zone_id": models.Number(1)}},
		{name: "set member", filter: set, payload: models.Payload{"status": models.String("degraded")}, want: true},
		{name: "set non-member", filter: set, payload: models.Payload{"status": models.String("ok")}},
		{name: "set missing", filter: set, payload: nil},
		{name: "threshold above", filter: threshold, payload: models.Payload{"motion_score": models.Number(0.2)}, want: true},
		{name: "threshold equal", filter: threshold, payload: models.Payload{"motion_score": models.Number(0.15)}, want: true},
		{name: "threshold below", filter: threshold, payload: models.Payload{"motion_score": models.Number(0.1)}},
		{name: "threshold numeric string", filter: threshold, payload: models.Payload{"motion_score": models.String("0.3")}, want: true},
		{name: "threshold non-numeric string", filter: threshold, payload: models.Payload{"motion_score": models.String("high")}},
		{name: "threshold bool", filter: threshold, payload: models.Payload{"motion_score": models.Bool(true)}},
		{name: "threshold null", filter: threshold, payload: models.Payload{"motion_score": models.Null()}},
		{name: "threshold missing counts as zero", filter: threshold, payload: models.Payload{}},
		{name: "zero threshold missing field", filter: zeroThreshold, payload: models.Payload{}, want: true},
		{name: "temporal defers to engine", filter: temporal, payload: nil, want: true},
		{name: "unknown kind", filter: Filter{}, payload: models.Payload{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.MatchPayload(tt.payload))
		})
	}
}

func TestFilterKind_String(t *testing.T) {
	assert.Equal(t, "exact", FilterExact.String())
	assert.Equal(t, "temporal_correlation", FilterTemporalCorrelation.String())
	assert.Equal(t, "filter_kind(0)", FilterKind(0).String())
}
