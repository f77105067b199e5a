// Package engine evaluates events against the rule set and builds explainable
// alerts. Every event is recorded in the correlation store before any rule is
// matched, so an event is visible to temporal conditions evaluated after it.
package engine

import (
	"log/slog"
	"time"

	"github.com/joshuaworth/hoistwaywatch/common/models"
	"github.com/joshuaworth/hoistwaywatch/rules/correlation"
	"github.com/joshuaworth/hoistwaywatch/rules/ruleset"
)

// Engine is safe for concurrent use: the rule set is immutable and the store
// and cooldown tracker serialize their own state.
type Engine struct {
	rules     *ruleset.RuleSet
	store     *correlation.Store
	cooldowns *cooldownTracker
	logger    *slog.Logger
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine over rules, reading and writing store.
func New(rules *ruleset.RuleSet, store *correlation.Store, opts ...Option) *Engine {
	if rules == nil {
		rules = &ruleset.RuleSet{Version: ruleset.SupportedVersion}
	}
	if store == nil {
		store = correlation.NewStore()
	}
	e := &Engine{
		rules:     rules,
		store:     store,
		cooldowns: newCooldownTracker(),
		logger:    slog.Default(),
		newID:     models.NewAlertID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the rule set the engine evaluates.
func (e *Engine) Rules() *ruleset.RuleSet {
	return e.rules
}

// Store returns the correlation store.
func (e *Engine) Store() *correlation.Store {
	return e.store
}

// Result is the outcome of one evaluation.
type Result struct {
	Alerts []*models.Alert

	// Suppressed lists rule ids that matched but were held back by cooldown.
	Suppressed []string
}

// Evaluate records ev and returns the alerts it triggers in rule order.
func (e *Engine) Evaluate(ev *models.Event) []*models.Alert {
	return e.EvaluateDetailed(ev).Alerts
}

// EvaluateDetailed is Evaluate, also reporting cooldown suppressions.
func (e *Engine) EvaluateDetailed(ev *models.Event) Result {
	key := correlation.KeyFor(ev.Type, ev.Payload)
	e.store.Record(key, correlation.Observation{EventID: ev.EventID, Payload: ev.Payload}, ev.Timestamp)

	now := e.store.Now()
	var res Result
	for _, rule := range e.rules.Rules {
		recent, ok := e.match(rule, ev)
		if !ok {
			continue
		}
		if !e.cooldowns.allow(cooldownKey(rule, ev), rule.Then.Cooldown, now) {
			e.logger.Debug("rule match suppressed by cooldown",
				"rule_id", rule.ID,
				"event_id", ev.EventID,
				"cooldown_ms", rule.Then.Cooldown.Milliseconds())
			res.Suppressed = append(res.Suppressed, rule.ID)
			continue
		}
		res.Alerts = append(res.Alerts, e.buildAlert(rule, ev, key, recent, now))
	}
	return res
}

// correlated is a satisfied and_recent condition and the entry that satisfied it.
type correlated struct {
	cond  ruleset.RecentCondition
	entry correlation.Entry
}

func (e *Engine) match(rule *ruleset.Rule, ev *models.Event) ([]correlated, bool) {
	if rule.EventType != ev.Type {
		return nil, false
	}
	for _, f := range rule.ScalarFilters() {
		if !f.MatchPayload(ev.Payload) {
			return nil, false
		}
	}

	conds := rule.RecentConditions()
	if len(conds) == 0 {
		return nil, true
	}
	found := make([]correlated, 0, len(conds))
	for _, cond := range conds {
		entry, ok := e.store.LookupIfFresh(correlation.Key(cond.EventType, cond.ZoneID), cond.Within)
		if !ok {
			return nil, false
		}
		found = append(found, correlated{cond: cond, entry: entry})
	}
	return found, true
}

func cooldownKey(rule *ruleset.Rule, ev *models.Event) string {
	switch rule.Then.CooldownScope {
	case ruleset.CooldownPerZone:
		zone, ok := ev.ZoneID()
		if !ok || zone == "" {
			zone = correlation.NoZone
		}
		return rule.ID + "|zone=" + zone
	case ruleset.CooldownPerCamera:
		camera := ev.CameraID
		if camera == "" {
			camera = correlation.NoZone
		}
		return rule.ID + "|camera=" + camera
	default:
		return rule.ID
	}
}

func (e *Engine) buildAlert(rule *ruleset.Rule, ev *models.Event, key string, recent []correlated, now time.Time) *models.Alert {
	inputs, why := explain(rule, ev, recent, now)

	eventIDs := []string{ev.EventID}
	seen := map[string]bool{ev.EventID: true}
	for _, c := range recent {
		if !seen[c.entry.EventID] {
			seen[c.entry.EventID] = true
			eventIDs = append(eventIDs, c.entry.EventID)
		}
	}

	return &models.Alert{
		SchemaVersion:     models.SchemaVersion,
		AlertID:           e.newID(),
		Timestamp:         now.UTC(),
		SiteID:            ev.SiteID,
		CameraID:          ev.CameraID,
		Severity:          rule.Then.Severity,
		HazardScore:       rule.Then.HazardScore,
		Summary:           rule.Then.Summary,
		RecommendedAction: rule.Then.RecommendedAction,
		Explanation: models.AlertExplanation{
			RuleID: rule.ID,
			Why:    why,
			Inputs: inputs,
		},
		Trigger: models.AlertTrigger{
			EventIDs:      eventIDs,
			CorrelationID: ev.CorrelationID,
		},
		Evidence: models.EvidenceFromPayload(ev.Evidence),
		Debug: models.Payload{
			"correlation_key": models.String(key),
		},
	}
}
