package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joshuaworth/hoistwaywatch/common/models"
	"github.com/joshuaworth/hoistwaywatch/rules/correlation"
	"github.com/joshuaworth/hoistwaywatch/rules/ruleset"
)

// explain lists the inputs behind a match and renders the operator-facing why.
func explain(rule *ruleset.Rule, ev *models.Event, recent []correlated, now time.Time) ([]models.ExplanationInput, string) {
	inputs := []models.ExplanationInput{
		{Name: "event_id", Value: models.String(ev.EventID)},
		{Name: "event_type", Value: models.String(string(ev.Type))},
	}
	why := []string{"matched " + rule.ID, "type=" + string(ev.Type)}

	for _, field := range rule.ExplainedFields() {
		v, ok := ev.Payload.Get(field)
		if !ok {
			continue
		}
		in := models.ExplanationInput{Name: field, Value: v}
		if bound, ok := rule.Threshold(field); ok {
			in.Note = "threshold >= " + formatFloat(bound)
		}
		inputs = append(inputs, in)
		why = append(why, field+"="+v.String())
	}

	for _, c := range recent {
		age := c.entry.Age(now)
		zone := models.Null()
		zoneText := correlation.NoZone
		if c.cond.ZoneID != "" {
			zone = models.String(c.cond.ZoneID)
			zoneText = c.cond.ZoneID
		}
		inputs = append(inputs, models.ExplanationInput{
			Name: "recent." + string(c.cond.EventType),
			Value: models.Object(map[string]models.Value{
				"event_id": models.String(c.entry.EventID),
				"zone_id":  zone,
				"age_sec":  models.Number(seconds(age)),
			}),
			Note: fmt.Sprintf("observed %ss before evaluation (window %ss)",
				formatFloat(seconds(age)), formatFloat(seconds(c.cond.Within))),
		})
		why = append(why, fmt.Sprintf("recent %s zone_id=%s %ss ago",
			c.cond.EventType, zoneText, formatFloat(seconds(age))))
	}

	return inputs, strings.Join(why, ", ")
}

// seconds converts d to seconds rounded to the millisecond.
func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
