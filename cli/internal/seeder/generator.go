// Package seeder publishes synthetic sensor events for exercising the rule
// engine without cameras.
package seeder

import (
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/joshuaworth/hoistwaywatch/common/models"
)

var (
	healthStatuses  = []string{"ok", "ok", "ok", "ok", "degraded", "offline"}
	lightingReasons = []string{"low_light", "blur", "glare"}
	tamperReasons   = []string{"occlusion", "tamper", "defocus"}
)

// sourceService names the sensor service that would publish t.
func sourceService(t models.EventType) string {
	if t == models.EventCameraHealth {
		return "capture"
	}
	return "vision"
}

// Generator builds random but plausible sensor events.
type Generator struct {
	cfg        Config
	types      []models.EventType
	faker      *gofakeit.Faker
	now        func() time.Time
	instanceID string
}

// NewGenerator creates a generator. cfg must be valid.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	types, _ := cfg.EventTypes()

	faker := gofakeit.New(cfg.Seed)
	return &Generator{
		cfg:        cfg,
		types:      types,
		faker:      faker,
		now:        time.Now,
		instanceID: "seeder-" + faker.LetterN(8),
	}, nil
}

// Next returns a new event of a random configured type.
func (g *Generator) Next() *models.Event {
	t := g.types[g.faker.IntRange(0, len(g.types)-1)]
	return g.Event(t, g.zone())
}

// Event builds an event of type t. zone is used by zone-scoped types.
func (g *Generator) Event(t models.EventType, zone string) *models.Event {
	var payload models.Payload
	switch t {
	case models.EventMotionInZone:
		payload = models.Payload{
			"zone_id":      models.String(zone),
			"motion_score": models.Number(round(g.faker.Float64Range(0, 1), 4)),
			"confidence":   models.Number(round(g.faker.Float64Range(0.3, 1), 4)),
		}
	case models.EventPersonInZone:
		payload = models.Payload{
			"zone_id":    models.String(zone),
			"confidence": models.Number(round(g.faker.Float64Range(0.5, 1), 4)),
		}
	case models.EventCameraHealth:
		payload = models.Payload{
			"status": models.String(g.faker.RandomString(healthStatuses)),
			"fps":    models.Number(float64(g.faker.IntRange(10, 30))),
		}
	case models.EventLightingQuality:
		quality := round(g.faker.Float64Range(0, 1), 3)
		reason := models.Null()
		if quality < 0.3 {
			reason = models.String(g.faker.RandomString(lightingReasons))
		}
		payload = models.Payload{
			"quality": models.Number(quality),
			"reason":  reason,
		}
	case models.EventTamperOrOcclusion:
		payload = models.Payload{
			"reason":     models.String(g.faker.RandomString(tamperReasons)),
			"confidence": models.Number(round(g.faker.Float64Range(0.5, 1), 4)),
		}
	}

	ev := models.NewEvent(t, models.EventSource{
		Service:    sourceService(t),
		InstanceID: g.instanceID,
	}, payload)
	ev.Timestamp = g.now().UTC()
	ev.SiteID = g.cfg.SiteID
	ev.CameraID = g.cfg.CameraID
	if t == models.EventMotionInZone || t == models.EventPersonInZone {
		ev.Evidence = models.Payload{
			"frame_refs": models.List(models.String("frames/" + g.cfg.CameraID + "/" + ev.EventID + ".jpg")),
		}
	}
	return ev
}

// HazardScenario returns a person entering zone followed by motion in the
// same zone, the sequence correlation rules look for.
func (g *Generator) HazardScenario(zone string) []*models.Event {
	person := g.Event(models.EventPersonInZone, zone)
	motion := g.Event(models.EventMotionInZone, zone)
	motion.Payload["motion_score"] = models.Number(round(g.faker.Float64Range(0.5, 1), 4))
	motion.Payload["confidence"] = models.Number(round(g.faker.Float64Range(0.8, 1), 4))
	return []*models.Event{person, motion}
}

// Publishable applies the vision service's motion gate: motion below the
// threshold or with low confidence is never published.
func (g *Generator) Publishable(ev *models.Event) bool {
	if ev.Type != models.EventMotionInZone {
		return true
	}
	score, _ := ev.Payload["motion_score"].Float()
	conf, _ := ev.Payload["confidence"].Float()
	return score >= g.cfg.MotionThreshold && conf >= g.cfg.MinConfidence
}

func (g *Generator) zone() string {
	return g.cfg.Zones[g.faker.IntRange(0, len(g.cfg.Zones)-1)]
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
